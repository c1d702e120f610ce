// Package secrets resolves model credentials.
//
// Credentials are looked up by name through a chain of providers:
//
//   - EnvProvider reads environment variables ("openai-api-key" is read
//     from OPENAI_API_KEY, or PREFIX_OPENAI_API_KEY with a prefix)
//   - FileProvider reads one file per secret from a directory, the layout
//     used by Kubernetes and Docker secret mounts
//
// The first provider that has a value wins. Values are cached for a short
// TTL so bundle reloads pick up rotated files without hitting the
// filesystem on every load.
//
// Bundles refer to secrets with ${secret:name}:
//
//	models:
//	  - type: main
//	    engine: openai
//	    model: gpt-4o-mini
//	    parameters:
//	      api_key: ${secret:openai-api-key}
//
// Usage:
//
//	providers := []secrets.Provider{secrets.NewEnvProvider("")}
//	if dir != "" {
//	    fp, err := secrets.NewFileProvider(dir)
//	    if err != nil {
//	        return err
//	    }
//	    providers = append(providers, fp)
//	}
//	m := secrets.NewManager(providers, secrets.DefaultCacheTTL)
//	key, err := m.ResolveReferences(ctx, bundleKey)
package secrets
