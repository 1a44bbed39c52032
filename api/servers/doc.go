/*
Package servers implements HTTP server lifecycle management for the secret
management service.

# Server Lifecycle

A Server runs two listeners:

- the API listener, serving every registered handler plus the health and
  drain endpoints (/livez, /readyz, /drain, /undrain) and, optionally,
  pprof under /debug
- the metrics listener, exposing the Prometheus registry on /metrics

Requests to the API listener are access-logged and counted per route
pattern, method and status code.

Draining marks the server not ready so load balancers stop routing to it
before Shutdown is called.

# Example Usage

	cfg := &api.HTTPServerConfig{
	    ListenAddr:  ":13300",
	    MetricsAddr: ":13301",
	    Log:         logger,
	}

	server, err := servers.New(cfg, registry, secretsHandler, teeHandler)
	if err != nil {
	    log.Fatalf("Failed to create server: %v", err)
	}
	server.RunInBackground()
	defer server.Shutdown()
*/
package servers
