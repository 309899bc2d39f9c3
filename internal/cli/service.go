package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hooklog/internal/config"
	"hooklog/internal/pathutil"
	"hooklog/internal/service"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the TTS helper processes",
	}
	cmd.AddCommand(
		newServiceStartCmd(),
		newServiceStopCmd(),
		newServiceRestartCmd(),
		newServiceStatusCmd(),
	)
	return cmd
}

// loadServices loads config and resolves which services the args refer to.
// No args means all configured services.
func loadServices(args []string) (config.Config, []service.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Services) == 0 {
		return cfg, nil, fmt.Errorf("no services configured")
	}

	if len(args) == 0 {
		return cfg, cfg.Services, nil
	}

	services := make([]service.Service, 0, len(args))
	for _, name := range args {
		svc, err := cfg.FindService(name)
		if err != nil {
			return cfg, nil, err
		}
		services = append(services, svc)
	}
	return cfg, services, nil
}

func newManager(cfg config.Config) *service.Manager {
	return service.NewManager(pathutil.ExpandTilde(cfg.EffectivePIDDir()), newLogger())
}

func newServiceStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [name...]",
		Short: "Start configured services (all when no name is given)",
		RunE:  runServiceStart,
	}
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	cfg, services, err := loadServices(args)
	if err != nil {
		return err
	}
	mgr := newManager(cfg)

	var failed bool
	for _, svc := range services {
		pid, err := mgr.Start(svc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hooklog: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("Started %s (pid %d)\n", svc.Name, pid)
	}

	if failed {
		return &exitError{code: 1}
	}
	return nil
}

func newServiceStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [name...]",
		Short: "Stop running services (all when no name is given)",
		RunE:  runServiceStop,
	}
	cmd.Flags().Duration("grace", service.DefaultStopGrace, "time to wait after SIGTERM before SIGKILL")
	return cmd
}

func runServiceStop(cmd *cobra.Command, args []string) error {
	cfg, services, err := loadServices(args)
	if err != nil {
		return err
	}
	mgr := newManager(cfg)

	grace, err := cmd.Flags().GetDuration("grace")
	if err != nil {
		return fmt.Errorf("invalid --grace: %w", err)
	}

	var failed bool
	for _, svc := range services {
		err := mgr.Stop(svc.Name, grace)
		switch {
		case errors.Is(err, service.ErrNotRunning):
			fmt.Printf("%s is not running\n", svc.Name)
		case err != nil:
			fmt.Fprintf(os.Stderr, "hooklog: %v\n", err)
			failed = true
		default:
			fmt.Printf("Stopped %s\n", svc.Name)
		}
	}

	if failed {
		return &exitError{code: 1}
	}
	return nil
}

func newServiceRestartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart [name...]",
		Short: "Restart services (all when no name is given)",
		RunE:  runServiceRestart,
	}
	cmd.Flags().Duration("grace", service.DefaultStopGrace, "time to wait after SIGTERM before SIGKILL")
	return cmd
}

func runServiceRestart(cmd *cobra.Command, args []string) error {
	cfg, services, err := loadServices(args)
	if err != nil {
		return err
	}
	mgr := newManager(cfg)

	grace, err := cmd.Flags().GetDuration("grace")
	if err != nil {
		return fmt.Errorf("invalid --grace: %w", err)
	}

	var failed bool
	for _, svc := range services {
		if err := mgr.Stop(svc.Name, grace); err != nil && !errors.Is(err, service.ErrNotRunning) {
			fmt.Fprintf(os.Stderr, "hooklog: %v\n", err)
			failed = true
			continue
		}
		// Give the old process's sockets a moment to free up.
		time.Sleep(200 * time.Millisecond)

		pid, err := mgr.Start(svc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hooklog: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("Restarted %s (pid %d)\n", svc.Name, pid)
	}

	if failed {
		return &exitError{code: 1}
	}
	return nil
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [name...]",
		Short: "Show service status",
		RunE:  runServiceStatus,
	}
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	cfg, services, err := loadServices(args)
	if err != nil {
		return err
	}
	mgr := newManager(cfg)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATE\tPID\tPORT")
	for _, svc := range services {
		st := mgr.Status(svc.Name)
		state := "stopped"
		pid := "-"
		if st.Running {
			state = "running"
			pid = fmt.Sprintf("%d", st.PID)
		}
		port := "-"
		if svc.Port != 0 {
			port = fmt.Sprintf("%d", svc.Port)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", svc.Name, state, pid, port)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}
