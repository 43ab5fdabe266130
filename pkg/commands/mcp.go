package commands

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/widgetsync/pkg/app"
	"tableflip.dev/widgetsync/pkg/runner/mcp"
)

type mcpOptions struct {
	transport   string
	httpHost    string
	httpPort    int
	httpPath    string
	httpTLSCert string
	httpTLSKey  string
	watch       bool
}

func addMCP(topLevel *cobra.Command) {
	o := &mcpOptions{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "start the Model Context Protocol server",
		Long: `Launch an MCP server that exposes the todo list, timer tasks, memo and
chat sessions through the Model Context Protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc *app.Service) error {
				runner, err := o.runner(cmd, svc)
				if err != nil {
					return err
				}
				if !o.watch {
					return runner.Do(ctx)
				}
				inbox, err := svc.Inbox()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() { _ = svc.Serve(ctx, inbox) }()
				return runner.Do(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&o.transport, "transport", string(mcp.TransportHTTP), "transport to use: http or stdio")
	cmd.Flags().StringVar(&o.httpHost, "http-host", "127.0.0.1", "host/interface for HTTP transport")
	cmd.Flags().IntVar(&o.httpPort, "http-port", 8080, "port for HTTP transport (use 0 for random)")
	cmd.Flags().StringVar(&o.httpPath, "http-path", "/mcp", "HTTP endpoint path")
	cmd.Flags().StringVar(&o.httpTLSCert, "http-tls-cert", "", "TLS certificate file for HTTPS")
	cmd.Flags().StringVar(&o.httpTLSKey, "http-tls-key", "", "TLS private key file for HTTPS")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "also apply queued task requests and poll the timer")

	topLevel.AddCommand(cmd)
}

func (o *mcpOptions) runner(cmd *cobra.Command, svc *app.Service) (mcp.Runner, error) {
	path := strings.TrimSpace(o.httpPath)
	if path == "" {
		path = "/mcp"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	runner := mcp.Runner{
		Service:          svc,
		Name:             "widgetsync",
		Version:          version,
		HTTPEndpointPath: path,
		HTTPServerCert:   strings.TrimSpace(o.httpTLSCert),
		HTTPServerKey:    strings.TrimSpace(o.httpTLSKey),
	}

	switch strings.ToLower(strings.TrimSpace(o.transport)) {
	case "", string(mcp.TransportHTTP):
		host := strings.TrimSpace(o.httpHost)
		if host == "" {
			host = "127.0.0.1"
		}
		if o.httpPort < 0 || o.httpPort > 65535 {
			return runner, fmt.Errorf("invalid http-port %d", o.httpPort)
		}
		runner.Transport = mcp.TransportHTTP
		runner.HTTPListenAddr = net.JoinHostPort(host, strconv.Itoa(o.httpPort))
		runner.OnHTTPListening = func(a net.Addr) {
			scheme := "http"
			if runner.HTTPServerCert != "" && runner.HTTPServerKey != "" {
				scheme = "https"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "MCP HTTP server listening on %s://%s%s\n", scheme, displayAddr(host, a), path)
		}
	case string(mcp.TransportStdio):
		runner.Transport = mcp.TransportStdio
	default:
		return runner, fmt.Errorf("unsupported transport %q (expected http or stdio)", o.transport)
	}
	return runner, nil
}

// displayAddr turns a listener address into something a client can dial.
func displayAddr(host string, a net.Addr) string {
	tcpAddr, ok := a.(*net.TCPAddr)
	if !ok {
		return a.String()
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
		if tcpAddr.IP != nil && !tcpAddr.IP.IsUnspecified() {
			host = tcpAddr.IP.String()
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(tcpAddr.Port))
}
