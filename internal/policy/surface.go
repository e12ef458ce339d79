package policy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"grimm.is/selab/internal/logging"
)

// Surface aggregates every manager into the full policy surface.
type Surface struct {
	Booleans     *BooleanManager
	Modules      *ModuleManager
	FileContexts *FileContextManager
	Ports        *PortManager
	Mode         *ModeManager
	AVC          *AVCManager

	runner    CommandRunner
	simulated bool
	logger    *logging.Logger
}

// NewSurface wires the managers to one runner. In simulation the runner
// should be a DryRunner; Refresh then keeps the in-memory data.
func NewSurface(runner CommandRunner, simulated bool, logger *logging.Logger) *Surface {
	if logger == nil {
		logger = logging.WithComponent("surface")
	}
	configPath := DefaultSELinuxConfig
	if simulated {
		configPath = ""
	}
	return &Surface{
		Booleans:     NewBooleanManager(runner, logger.WithComponent("booleans")),
		Modules:      NewModuleManager(runner, logger.WithComponent("modules")),
		FileContexts: NewFileContextManager(runner, logger.WithComponent("fcontext")),
		Ports:        NewPortManager(runner, logger.WithComponent("ports")),
		Mode:         NewModeManager(runner, logger.WithComponent("mode"), configPath),
		AVC:          NewAVCManager(runner, logger.WithComponent("avc")),
		runner:       runner,
		simulated:    simulated,
		logger:       logger,
	}
}

// Simulated reports whether the surface is detached from the host policy.
func (s *Surface) Simulated() bool { return s.simulated }

// Runner returns the runner the managers mutate through.
func (s *Surface) Runner() CommandRunner { return s.runner }

// Refresh reloads every manager concurrently from the policy tools.
func (s *Surface) Refresh(ctx context.Context) error {
	if s.simulated {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Mode.Load(ctx) })
	g.Go(func() error { return s.Booleans.Load(ctx) })
	g.Go(func() error { return s.Modules.Load(ctx) })
	g.Go(func() error { return s.FileContexts.Load(ctx) })
	g.Go(func() error { return s.Ports.Load(ctx) })
	g.Go(func() error { return s.AVC.Load(ctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh policy surface: %w", err)
	}
	s.logger.Debug("policy surface refreshed")
	return nil
}

// CurrentMode, BooleanValues, ModuleStates, FileContextRules and PortRules
// expose the surface for snapshots.
func (s *Surface) CurrentMode() Mode { return s.Mode.Current() }
func (s *Surface) BooleanValues() []Boolean { return s.Booleans.List() }
func (s *Surface) ModuleStates() []Module { return s.Modules.List() }
func (s *Surface) FileContextRules() []FileContext { return s.FileContexts.List() }
func (s *Surface) PortRules() []Port { return s.Ports.List() }

// AVCAlerts returns the loaded denials.
func (s *Surface) AVCAlerts() []AVCAlert { return s.AVC.List() }

// Restore rewrites the in-memory collections. Booleans and modules keep
// their descriptive fields and take the restored values; names absent from
// the restored set are left alone.
func (s *Surface) Restore(mode Mode, booleans map[string]bool, modules map[string]bool, fcontexts []FileContext, ports []Port) {
	if mode != "" {
		s.Mode.Replace(mode)
	}

	bs := s.Booleans.List()
	for i := range bs {
		if v, ok := booleans[bs[i].Name]; ok {
			bs[i].CurrentValue = v
		}
	}
	s.Booleans.Replace(bs)

	ms := s.Modules.List()
	for i := range ms {
		if v, ok := modules[ms[i].Name]; ok {
			ms[i].Enabled = v
		}
	}
	s.Modules.Replace(ms)

	s.FileContexts.Replace(fcontexts)
	s.Ports.Replace(ports)
}

// LoadSimulationData fills the managers with a small fixed dataset so the
// tool can run without SELinux.
func (s *Surface) LoadSimulationData() {
	s.Mode.Replace(ModeEnforcing)
	s.Booleans.Replace([]Boolean{
		{Name: "allow_ssh_keysign", Description: "Allow ssh keysign operation", CurrentValue: true, DefaultValue: false, Persistent: true},
		{Name: "ftpd_anon_write", Description: "Allow anonymous ftp writes", CurrentValue: false, DefaultValue: false, Persistent: true},
		{Name: "httpd_can_network_connect", Description: "Allow httpd to make outbound connections", CurrentValue: false, DefaultValue: false, Persistent: true},
		{Name: "httpd_enable_homedirs", Description: "Allow httpd to read home directories", CurrentValue: false, DefaultValue: false, Persistent: true},
		{Name: "httpd_read_user_content", Description: "Allow httpd to read user content", CurrentValue: false, DefaultValue: false, Persistent: true},
		{Name: "sample_boolean", Description: "Sample boolean for testing", CurrentValue: false, DefaultValue: false, Persistent: true},
	})
	s.Modules.Replace([]Module{
		{Name: "apache", Enabled: true, Priority: 100},
		{Name: "container", Enabled: true, Priority: 200},
		{Name: "sandbox", Enabled: false, Priority: 100},
		{Name: "telnet", Enabled: false, Priority: 100},
	})
	s.FileContexts.Replace([]FileContext{
		{Path: "/srv/www(/.*)?", Label: "httpd_sys_content_t"},
		{Path: "/var/www(/.*)?", Label: "httpd_sys_content_t"},
	})
	s.Ports.Replace([]Port{
		{Port: "22", Protocol: "tcp", Label: "ssh_port_t"},
		{Port: "443", Protocol: "tcp", Label: "http_port_t"},
		{Port: "80", Protocol: "tcp", Label: "http_port_t"},
	})
	s.AVC.Replace([]AVCAlert{
		{
			Timestamp:     "2024-01-15 10:30:00",
			SourceContext: "system_u:system_r:httpd_t:s0",
			TargetContext: "unconfined_u:object_r:user_home_t:s0",
			TargetClass:   "file",
			Permission:    "read",
			Comm:          "httpd",
			Path:          "/home/user/file.txt",
			Severity:      SeverityMedium,
		},
		{
			Timestamp:     "2024-01-15 10:32:10",
			SourceContext: "system_u:system_r:httpd_t:s0",
			TargetContext: "system_u:object_r:shell_exec_t:s0",
			TargetClass:   "file",
			Permission:    "execute",
			Comm:          "httpd",
			Path:          "/usr/bin/bash",
			Severity:      SeverityHigh,
		},
	})
	s.logger.Info("simulation data loaded")
}
