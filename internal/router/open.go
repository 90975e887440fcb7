package router

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener navigates to a dashboard URL.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// NopOpener leaves navigation to the caller, which receives the URL in the response.
type NopOpener struct{}

// Open does nothing.
func (NopOpener) Open(context.Context, string) error { return nil }

// ExecOpener opens URLs with the platform's default browser launcher.
type ExecOpener struct {
	// GOOS overrides runtime.GOOS.
	GOOS string
	// Start launches the command without waiting for it. Defaults to os/exec.
	Start func(ctx context.Context, name string, args ...string) error
}

// Open launches the browser for url.
func (o ExecOpener) Open(ctx context.Context, url string) error {
	name, args, err := openCommand(o.goos(), url)
	if err != nil {
		return err
	}
	start := o.Start
	if start == nil {
		start = startCommand
	}
	if err := start(ctx, name, args...); err != nil {
		return fmt.Errorf("launch %s: %w", name, err)
	}
	return nil
}

func (o ExecOpener) goos() string {
	if o.GOOS != "" {
		return o.GOOS
	}
	return runtime.GOOS
}

func openCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	}
	return "", nil, fmt.Errorf("opening a browser is not supported on %s", goos)
}

// startCommand detaches the launcher from ctx; it must outlive the request.
func startCommand(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
