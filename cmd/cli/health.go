package cli

import (
	"fmt"

	"github.com/glimps-re/pescan/pkg/config"
	"github.com/spf13/cobra"
)

func newHealthCmd(appConfig *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the classification service is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd, appConfig)
			if err != nil {
				return
			}
			defer a.Close()
			status, err := a.client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("service %s is not healthy: %w", a.client.BaseURL(), err)
			}
			a.out.Println(fmt.Sprintf("Backend %s: %s", a.client.BaseURL(), status))
			return
		},
	}
}
