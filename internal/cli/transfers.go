package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/listing"
	"github.com/sftpdesk/sftpdesk/internal/localfs"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/progress"
	"github.com/sftpdesk/sftpdesk/internal/services"
)

// transferJob is one file the CLI moves.
type transferJob struct {
	id    string
	label string
	run   func(ctx context.Context, transferID string) error
}

// runTransfers runs jobs concurrently, drawing a single bar for one job and
// a multi-bar for several. The engine's semaphore bounds concurrency.
// The returned error counts failures first, then cancellations.
func runTransfers(ctx context.Context, e *core.Engine, out io.Writer, jobs []transferJob) error {
	if len(jobs) == 0 {
		return nil
	}

	if len(jobs) == 1 {
		bar := progress.NewBar(out, jobs[0].label, 0)
		w := progress.Watch(e.Events(), bar)
		err := jobs[0].run(ctx, jobs[0].id)
		w.Stop()
		if err != nil && !bar.Done() {
			bar.Abort()
		}
		return err
	}

	mb := progress.NewMultiBar(out, len(jobs))
	w := progress.Watch(e.Events(), mb)

	// Log lines go above the bars while they are drawn.
	log := GetLogger()
	prevOutput := log.Output()
	log.SetOutput(logging.ConsoleWriter(mb.Writer()))

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job transferJob) {
			defer wg.Done()
			log.Debug().Str("transfer_id", job.id).Str("file", job.label).Msg("transfer starting")
			errs[i] = job.run(ctx, job.id)
		}(i, job)
	}
	wg.Wait()
	w.Stop()
	log.SetOutput(prevOutput)

	var failed []error
	cancelled := 0
	for i, err := range errs {
		switch {
		case err == nil:
		case apperr.IsCancelled(err):
			cancelled++
			mb.Fail(jobs[i].id, jobs[i].label, err)
		default:
			mb.Fail(jobs[i].id, jobs[i].label, err)
			failed = append(failed, err)
		}
	}
	mb.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d transfers failed: %w", len(failed), len(jobs), errors.Join(failed...))
	}
	if cancelled > 0 {
		return fmt.Errorf("%d of %d transfers cancelled", cancelled, len(jobs))
	}
	return nil
}

// newGetCmd creates the 'get' command.
func newGetCmd() *cobra.Command {
	var (
		cf        connFlags
		output    string
		destDir   string
		overwrite bool
		legacy    bool
	)

	cmd := &cobra.Command{
		Use:   "get <remote-file>...",
		Short: "Download remote files with progress",
		Long: `Download one or more remote files.

Files land in --dest (default: the configured downloads directory) under
their remote base name. With a single file, --output names the local file
directly. Existing local files are only replaced with --overwrite or after
confirming the prompt. Ctrl+C cancels every transfer in flight; partially
written files are left in place.

Examples:
  sftpdesk get --profile backup /srv/logs/app.log
  sftpdesk get -H files.example.com -u alice -d ./out /data/a.bin /data/b.bin
  sftpdesk get -P backup -o today.csv /exports/2024-06-01.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "" && len(args) > 1 {
				return fmt.Errorf("--output can only be used with a single remote file")
			}
			if legacy && len(args) > 1 {
				return fmt.Errorf("--legacy can only be used with a single remote file")
			}

			return withSession(cmd.Context(), &cf, func(ctx context.Context, e *core.Engine) error {
				dir := destDir
				if dir == "" {
					dir = e.DownloadsDirectory()
				}

				var jobs []transferJob
				for _, remote := range args {
					remote := remote // per-iteration copy for the job closure (pre-Go 1.22 loop semantics)
					local := output
					if local == "" {
						local = filepath.Join(dir, listing.DisplayName(remote))
					}
					ok, err := confirmOverwrite(local, overwrite)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %s (exists)\n", local)
						continue
					}

					if legacy {
						res, err := e.Download(ctx, cliSessionID, remote, local)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", res.Message)
						return nil
					}
					jobs = append(jobs, transferJob{
						id:    uuid.NewString(),
						label: "← " + remote,
						run: func(ctx context.Context, id string) error {
							_, err := e.DownloadWithProgress(ctx, services.DownloadRequest{
								SessionID:  cliSessionID,
								RemotePath: remote,
								LocalPath:  local,
								TransferID: id,
							})
							return err
						},
					})
				}

				GetLogger().Debug().Int("files", len(jobs)).Str("dest", dir).Msg("starting downloads")
				return runTransfers(ctx, e, cmd.ErrOrStderr(), jobs)
			})
		},
	}
	addConnectionFlags(cmd, &cf)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Local file path (single file only)")
	cmd.Flags().StringVarP(&destDir, "dest", "d", "", "Local directory (default: downloads directory)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing local files without asking")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Plain download without progress or cancellation")
	return cmd
}

// newPutCmd creates the 'put' command.
func newPutCmd() *cobra.Command {
	var (
		cf        connFlags
		remoteDir string
		target    string
	)

	cmd := &cobra.Command{
		Use:   "put <local-path>...",
		Short: "Upload local files with progress",
		Long: `Upload one or more local files.

Files are written into --to (default: the remote working directory) under
their local base name. A directory argument uploads the regular, non-hidden
files directly inside it. With a single file, --remote-path names the remote
file directly.

Examples:
  sftpdesk put --profile backup report.pdf --to /srv/inbox
  sftpdesk put -H files.example.com -u alice ./batch/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandLocal(localfs.NewOS(), args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no files to upload")
			}
			if target != "" && len(files) > 1 {
				return fmt.Errorf("--remote-path can only be used with a single local file")
			}

			return withSession(cmd.Context(), &cf, func(ctx context.Context, e *core.Engine) error {
				jobs := make([]transferJob, 0, len(files))
				for _, local := range files {
					local := local // per-iteration copy for the job closure (pre-Go 1.22 loop semantics)
					remote := target
					if remote == "" {
						remote = path.Join(remoteDir, filepath.Base(local))
					}
					jobs = append(jobs, transferJob{
						id:    uuid.NewString(),
						label: "→ " + local,
						run: func(ctx context.Context, id string) error {
							_, err := e.Upload(ctx, services.UploadRequest{
								SessionID:  cliSessionID,
								LocalPath:  local,
								RemotePath: remote,
								TransferID: id,
							})
							return err
						},
					})
				}
				return runTransfers(ctx, e, cmd.ErrOrStderr(), jobs)
			})
		},
	}
	addConnectionFlags(cmd, &cf)
	cmd.Flags().StringVar(&remoteDir, "to", ".", "Remote directory")
	cmd.Flags().StringVarP(&target, "remote-path", "r", "", "Remote file path (single file only)")
	return cmd
}

// expandLocal replaces directory arguments with the regular, non-hidden
// files directly inside them.
func expandLocal(store *localfs.Store, args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := store.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot upload %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := store.ListDirectory(arg, localfs.ListOptions{FilesOnly: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", arg, err)
		}
		for _, entry := range entries {
			files = append(files, entry.Path)
		}
	}
	return files, nil
}

// confirmOverwrite reports whether local may be written. A missing file is
// always fine; an existing one needs force or a yes at the prompt. No answer
// (end of input) means no.
func confirmOverwrite(local string, force bool) (bool, error) {
	if _, err := os.Stat(local); errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if force {
		return true, nil
	}
	ok, err := promptYesNo(fmt.Sprintf("%s exists. Overwrite?", local))
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	return ok, err
}
