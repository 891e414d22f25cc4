package agent

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	LaunchdAgentLabel = "com.usagebar.agent"
	SystemdAgentUnit  = "usagebar-agent.service"
)

// ServiceManager installs the agent as a launchd agent on macOS or a
// systemd user unit on Linux so it outlives the terminal that started it.
type ServiceManager struct {
	Kind       string
	exePath    string
	socketPath string
	stateDir   string
	unitPath   string
}

func NewServiceManager(socketPath string) (ServiceManager, error) {
	exePath, err := os.Executable()
	if err != nil {
		return ServiceManager{}, fmt.Errorf("resolve executable path: %w", err)
	}
	stateDir, err := StateDir()
	if err != nil {
		return ServiceManager{}, err
	}

	manager := ServiceManager{
		Kind:       runtime.GOOS,
		exePath:    exePath,
		socketPath: strings.TrimSpace(socketPath),
		stateDir:   stateDir,
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceManager{}, fmt.Errorf("resolve home dir: %w", err)
		}
		manager.unitPath = filepath.Join(home, "Library", "LaunchAgents", LaunchdAgentLabel+".plist")
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceManager{}, fmt.Errorf("resolve home dir: %w", err)
		}
		manager.unitPath = filepath.Join(home, ".config", "systemd", "user", SystemdAgentUnit)
	default:
		manager.Kind = "unsupported"
	}
	return manager, nil
}

func (m ServiceManager) IsSupported() bool {
	return m.Kind == "darwin" || m.Kind == "linux"
}

func (m ServiceManager) IsInstalled() bool {
	if strings.TrimSpace(m.unitPath) == "" {
		return false
	}
	_, err := os.Stat(m.unitPath)
	return err == nil
}

func (m ServiceManager) StdoutLogPath() string {
	if strings.TrimSpace(m.stateDir) == "" {
		return ""
	}
	return filepath.Join(m.stateDir, "agent.stdout.log")
}

func (m ServiceManager) StderrLogPath() string {
	if strings.TrimSpace(m.stateDir) == "" {
		return ""
	}
	return filepath.Join(m.stateDir, "agent.stderr.log")
}

func (m ServiceManager) StatusHint() string {
	switch m.Kind {
	case "darwin":
		return "launchctl print gui/$(id -u)/" + LaunchdAgentLabel
	case "linux":
		return "systemctl --user status " + SystemdAgentUnit
	default:
		return ""
	}
}

func (m ServiceManager) Install() error {
	if isTransientExecutablePath(m.exePath) {
		return fmt.Errorf(
			"refusing to install agent service from transient executable %q (likely from `go run`); build a stable binary first, then run `./bin/usagebar agent install`",
			m.exePath,
		)
	}

	switch m.Kind {
	case "darwin":
		return m.installLaunchd()
	case "linux":
		return m.installSystemdUser()
	default:
		return fmt.Errorf("agent service install is unsupported on %s", runtime.GOOS)
	}
}

func (m ServiceManager) Uninstall() error {
	switch m.Kind {
	case "darwin":
		return m.uninstallLaunchd()
	case "linux":
		return m.uninstallSystemdUser()
	default:
		return fmt.Errorf("agent service uninstall is unsupported on %s", runtime.GOOS)
	}
}

func (m ServiceManager) Start() error {
	switch m.Kind {
	case "darwin":
		return m.startLaunchd()
	case "linux":
		_, err := RunCommand("systemctl", "--user", "start", SystemdAgentUnit)
		return err
	default:
		return fmt.Errorf("agent service start is unsupported on %s", runtime.GOOS)
	}
}

func (m ServiceManager) Stop() error {
	switch m.Kind {
	case "darwin":
		var lastErr error
		for _, domain := range m.domainCandidates() {
			if _, err := RunCommand("launchctl", "bootout", domain+"/"+LaunchdAgentLabel); err != nil {
				if isLaunchctlNoSuchProcess(err) {
					continue
				}
				lastErr = err
			}
		}
		return lastErr
	case "linux":
		_, err := RunCommand("systemctl", "--user", "stop", SystemdAgentUnit)
		return err
	default:
		return fmt.Errorf("agent service stop is unsupported on %s", runtime.GOOS)
	}
}

func (m ServiceManager) domainCandidates() []string {
	uid := fmt.Sprintf("%d", os.Getuid())
	return []string{"gui/" + uid, "user/" + uid}
}

func (m ServiceManager) installLaunchd() error {
	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0o755); err != nil {
		return fmt.Errorf("create launch agents dir: %w", err)
	}
	if err := os.MkdirAll(m.stateDir, 0o755); err != nil {
		return fmt.Errorf("create agent state dir: %w", err)
	}

	content := launchdPlist(m.exePath, m.socketPath, m.StdoutLogPath(), m.StderrLogPath())
	if err := os.WriteFile(m.unitPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write launchd plist: %w", err)
	}

	var lastErr error
	for _, domain := range m.domainCandidates() {
		_, _ = RunCommand("launchctl", "bootout", domain+"/"+LaunchdAgentLabel)
		if _, err := RunCommand("launchctl", "bootstrap", domain, m.unitPath); err != nil {
			lastErr = err
			continue
		}
		if _, err := RunCommand("launchctl", "kickstart", "-k", domain+"/"+LaunchdAgentLabel); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("launchd bootstrap failed")
}

func (m ServiceManager) uninstallLaunchd() error {
	var lastErr error
	for _, domain := range m.domainCandidates() {
		_, err := RunCommand("launchctl", "bootout", domain+"/"+LaunchdAgentLabel)
		if err != nil {
			if isLaunchctlNoSuchProcess(err) {
				continue
			}
			lastErr = err
		}
	}
	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove launchd plist: %w", err)
	}
	if lastErr != nil {
		return lastErr
	}
	return nil
}

func isLaunchctlNoSuchProcess(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "no such process") || strings.Contains(msg, "boot-out failed: 3")
}

func (m ServiceManager) startLaunchd() error {
	var lastErr error
	for _, domain := range m.domainCandidates() {
		if _, err := RunCommand("launchctl", "kickstart", "-k", domain+"/"+LaunchdAgentLabel); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if !m.IsInstalled() {
		return fmt.Errorf("launchd service is not installed")
	}
	var bootstrapErr error
	for _, domain := range m.domainCandidates() {
		if _, err := RunCommand("launchctl", "bootstrap", domain, m.unitPath); err != nil {
			bootstrapErr = err
			continue
		}
		if _, err := RunCommand("launchctl", "kickstart", "-k", domain+"/"+LaunchdAgentLabel); err == nil {
			return nil
		} else {
			bootstrapErr = err
		}
	}
	if bootstrapErr != nil {
		return bootstrapErr
	}
	return lastErr
}

func (m ServiceManager) installSystemdUser() error {
	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0o755); err != nil {
		return fmt.Errorf("create systemd user dir: %w", err)
	}
	if err := os.MkdirAll(m.stateDir, 0o755); err != nil {
		return fmt.Errorf("create agent state dir: %w", err)
	}

	content := systemdUnit(m.exePath, m.socketPath)
	if err := os.WriteFile(m.unitPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write systemd unit: %w", err)
	}
	if _, err := RunCommand("systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	if _, err := RunCommand("systemctl", "--user", "enable", "--now", SystemdAgentUnit); err != nil {
		return err
	}
	return nil
}

func (m ServiceManager) uninstallSystemdUser() error {
	_, _ = RunCommand("systemctl", "--user", "disable", "--now", SystemdAgentUnit)
	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove systemd unit: %w", err)
	}
	_, _ = RunCommand("systemctl", "--user", "daemon-reload")
	return nil
}

func RunCommand(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		if trimmed != "" {
			return trimmed, fmt.Errorf("%s %s failed: %w (%s)", name, strings.Join(args, " "), err, trimmed)
		}
		return trimmed, fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return trimmed, nil
}

func launchdPlist(exePath, socketPath, stdoutPath, stderrPath string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>agent</string>
		<string>run</string>
		<string>--socket</string>
		<string>%s</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
</dict>
</plist>
`, LaunchdAgentLabel, xmlEscape(exePath), xmlEscape(socketPath), xmlEscape(stdoutPath), xmlEscape(stderrPath))
}

func systemdUnit(exePath, socketPath string) string {
	return fmt.Sprintf(`[Unit]
Description=usagebar agent
After=default.target

[Service]
Type=simple
ExecStart=%s agent run --socket %s
Restart=always
RestartSec=2
WorkingDirectory=%%h

[Install]
WantedBy=default.target
`, exePath, socketPath)
}

func xmlEscape(in string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(in)); err != nil {
		return in
	}
	return b.String()
}

// Status prints install and health details for the agent service.
func Status(socketPath string) error {
	socketPath = strings.TrimSpace(socketPath)
	manager, err := NewServiceManager(socketPath)
	if err != nil {
		return err
	}

	fmt.Printf(
		"agent kind=%s supported=%t installed=%t socket=%s\n",
		manager.Kind,
		manager.IsSupported(),
		manager.IsInstalled(),
		socketPath,
	)
	fmt.Printf("agent unit_path=%s\n", strings.TrimSpace(manager.unitPath))
	fmt.Printf("agent executable=%s transient=%t\n", strings.TrimSpace(manager.exePath), isTransientExecutablePath(manager.exePath))

	client := NewClient(socketPath)
	healthCtx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	health, healthErr := client.Health(healthCtx)

	if healthErr != nil {
		fmt.Println("agent running=false")
		fmt.Printf("agent health_error=%v\n", healthErr)
		if owner := SocketOwnerSummary(socketPath); strings.TrimSpace(owner) != "" {
			fmt.Printf("agent socket_owner=%q\n", owner)
		}
		if errTail := tailLogFile(manager.StderrLogPath(), 5); errTail != "" {
			fmt.Println("agent stderr_tail_begin")
			fmt.Println(errTail)
			fmt.Println("agent stderr_tail_end")
		}
		return nil
	}

	fmt.Println("agent running=true")
	fmt.Printf(
		"agent version=%s api=%s\n",
		strings.TrimSpace(health.AgentVersion),
		strings.TrimSpace(health.APIVersion),
	)
	return nil
}

// SocketOwnerSummary asks lsof who holds socketPath, for status output when
// the health probe fails but something is still bound to the socket.
func SocketOwnerSummary(socketPath string) string {
	socketPath = strings.TrimSpace(socketPath)
	if socketPath == "" {
		return ""
	}
	if _, err := os.Stat(socketPath); err != nil {
		return ""
	}
	out, err := RunCommand("lsof", "-n", "-Fpcn", socketPath)
	if err == nil {
		if summary := parseLSOFFirstRecord(out); summary != "" {
			return summary
		}
	}

	out, err = RunCommand("lsof", "-n", socketPath)
	if err != nil {
		return ""
	}
	return tailTextLines(out, 2)
}

func isTransientExecutablePath(path string) bool {
	p := strings.TrimSpace(path)
	if p == "" {
		return true
	}
	normalized := filepath.ToSlash(strings.ToLower(filepath.Clean(p)))
	if strings.Contains(normalized, "/go-build") && strings.Contains(normalized, "/exe/") {
		return true
	}
	tmpRoot := filepath.ToSlash(strings.ToLower(filepath.Clean(os.TempDir())))
	if tmpRoot == "" || tmpRoot == "." {
		return false
	}
	return strings.HasPrefix(normalized, tmpRoot+"/go-build")
}

func parseLSOFFirstRecord(out string) string {
	var (
		pid  string
		cmd  string
		name string
	)
	for _, rawLine := range strings.Split(out, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			if pid == "" {
				pid = strings.TrimSpace(line[1:])
			}
		case 'c':
			if cmd == "" {
				cmd = strings.TrimSpace(line[1:])
			}
		case 'n':
			if name == "" {
				name = strings.TrimSpace(line[1:])
			}
		}
		if pid != "" && cmd != "" && name != "" {
			break
		}
	}
	var parts []string
	if pid != "" {
		parts = append(parts, "pid="+pid)
	}
	if cmd != "" {
		parts = append(parts, "command="+cmd)
	}
	if name != "" {
		parts = append(parts, "socket="+name)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func tailLogFile(path string, maxLines int) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return ""
	}
	return tailTextLines(string(raw), maxLines)
}

func tailTextLines(text string, maxLines int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}
	if maxLines <= 0 {
		maxLines = 20
	}
	parts := strings.Split(text, "\n")
	if len(parts) <= maxLines {
		return strings.Join(parts, "\n")
	}
	return strings.Join(parts[len(parts)-maxLines:], "\n")
}
