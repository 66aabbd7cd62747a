package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
	"github.com/guoyu-zhang/say-like-a-native/pkg/version"
)

// versionOutput is the --json shape: the build plus the store this working
// directory resolves to, so bug reports say which backend served the index.
type versionOutput struct {
	version.BuildInfo
	StoreBackend  string `json:"store_backend,omitempty"`
	StoreLocation string `json:"store_location,omitempty"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the sayln build and the store it would open",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if shortOutput {
				_, err := fmt.Fprintln(out, version.Short())
				return err
			}

			v := versionOutput{BuildInfo: version.GetInfo()}
			// A broken config must not hide the version.
			if cfg, err := loadConfig(); err == nil {
				v.StoreBackend, v.StoreLocation = describeStore(cfg)
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}

			if _, err := fmt.Fprintln(out, version.String()); err != nil {
				return err
			}
			if v.StoreBackend != "" {
				_, err := fmt.Fprintf(out, "store: %s at %s\n", v.StoreBackend, v.StoreLocation)
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}

// describeStore names the backend and where its data lives: a file path for
// the embedded backends, the cluster URL and index for OpenSearch.
func describeStore(cfg *config.Config) (backend, location string) {
	sc := storeConfig(cfg)
	backend = sc.Backend
	if backend == "" {
		backend = store.BackendBleve
	}
	if p := sc.Path(); p != "" {
		return backend, p
	}
	return backend, sc.OpenSearch.URL + "/" + sc.Index
}
