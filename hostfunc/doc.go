// Package hostfunc provides the host capabilities handler code may use.
//
// Handlers get no implicit access to the network or the filesystem. The host
// hands them narrow capabilities instead:
//
// Filesystem: read-only mounts via [FS] and [Mount]. Private assets are
// reached this way, since they are never served over HTTP.
//
//	fs := hostfunc.NewFS([]hostfunc.Mount{
//	    {VirtualPath: "/assets", HostPath: "./assets"},
//	})
//	data, err := fs.ReadFile("/assets/secret.private.txt")
//
// HTTP: outbound requests limited to an allow-list via [HTTP] and
// [HTTPConfig]. The API client handed to handlers is an [HTTP] restricted
// to the API host with basic auth credentials.
//
// WebAssembly handlers reach the same capabilities through a [Registry] of
// named [Func] values:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("asset_read", fs.Read)
//	out, err := registry.Call(ctx, "asset_read", map[string]any{"path": "/assets/a.txt"})
package hostfunc
