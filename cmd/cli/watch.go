package cli

import (
	"log/slog"

	"github.com/glimps-re/pescan/pkg/config"
	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/glimps-re/pescan/pkg/monitor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCmd(appConfig *config.Config, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <directory or s3://bucket/prefix>",
		Short: "Use a location as a drop zone: the first file of each drop is selected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(cmd, appConfig)
			if err != nil {
				return
			}
			defer a.Close()
			a.printScanEnd()

			ctx := cmd.Context()
			fsys, name, err := a.selector.Resolve(ctx, args[0])
			if err != nil {
				return
			}
			var lastDone <-chan struct{}
			dropZone := monitor.NewDropZone(fsys, name, appConfig.Watch.ModificationDelay, func(paths []string) {
				files := make([]datamodel.FileRef, 0, len(paths))
				for _, p := range paths {
					location := a.selector.Location(fsys, p)
					file, e := a.selector.Acquire(ctx, location)
					if e != nil {
						logger.Warn("could not select dropped file", slog.String("location", location), slog.String(logErrorKey, e.Error()))
						continue
					}
					files = append(files, file)
				}
				if len(files) == 0 {
					return
				}
				a.session.Drop(files)
				a.out.Render(a.session.Snapshot())
				if !appConfig.Watch.AutoScan {
					return
				}
				// the drop abandoned the previous scan, let it return first
				if lastDone != nil {
					select {
					case <-lastDone:
					case <-ctx.Done():
						return
					}
				}
				done, started := a.session.RunScan(ctx)
				if !started {
					logger.Warn("scan not started", slog.String("file", files[0].Location))
					return
				}
				lastDone = done
			})
			if err = dropZone.Start(ctx); err != nil {
				return
			}
			defer dropZone.Close()

			a.out.Render(a.session.Snapshot())
			<-ctx.Done()
			return
		},
	}
	cmd.Flags().Bool("auto-scan", false, "scan each dropped file right away")
	cmd.Flags().Duration("mod-delay", config.DefaultModificationDelay, "quiet time before a dropped file is selected (e.g. '2s')")
	bindFlags(v, cmd.Flags(), map[string]string{
		"auto-scan": "watch.auto_scan",
		"mod-delay": "watch.modification_delay",
	})
	return cmd
}
