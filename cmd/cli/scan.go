package cli

import (
	"errors"
	"fmt"

	"github.com/glimps-re/pescan/pkg/config"
	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/glimps-re/pescan/pkg/session"
	"github.com/glimps-re/pescan/pkg/view"
	"github.com/spf13/cobra"
)

var ErrScanFailed = errors.New("scan failed")

type scanOptions struct {
	filter string
	json   bool
	brief  bool
}

func newScanCmd(appConfig *config.Config) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan <file or s3://bucket/key>",
		Short: "Submit one file and print its verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd, appConfig)
			if err != nil {
				return
			}
			defer a.Close()

			file, err := a.selector.Acquire(cmd.Context(), args[0])
			if err != nil {
				return
			}
			a.session.Select(&file)
			a.session.SetQuery(opts.filter)

			state := a.session.Scan(cmd.Context())
			if state.Phase != session.Succeeded {
				if !opts.json && !opts.brief {
					a.out.Render(a.session.Snapshot())
				}
				return fmt.Errorf("%w: %s", ErrScanFailed, state.Error)
			}

			result := *state.Result
			switch {
			case opts.json:
				result.Features = datamodel.Features(a.session.VisibleFeatures())
				return datamodel.WriteReport(cmd.OutOrStdout(), datamodel.NewReport(file, result))
			case opts.brief:
				a.out.Println(view.Brief(result))
			default:
				a.out.Render(a.session.Snapshot())
			}
			return
		},
	}
	cmd.Flags().StringVarP(&opts.filter, "filter", "f", "", "only show features whose name contains this text (case insensitive)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print a machine readable JSON report")
	cmd.Flags().BoolVar(&opts.brief, "brief", false, "print a one line verdict")
	cmd.MarkFlagsMutuallyExclusive("json", "brief")
	return cmd
}
