package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/i18n"
	"fluxstudio/internal/inputimage"
	"fluxstudio/internal/storage"
	"fluxstudio/internal/tracker"
)

var genFlags struct {
	prompt      string
	image       string
	seed        int
	aspectRatio string
	format      string
	upsampling  bool
	safety      int
	sync        bool
	interval    time.Duration
	maxAttempts int
	outDir      string
	noDownload  bool
}

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Submit a prompt and wait for the generated image",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(cmd, args)
		if err != nil {
			return err
		}

		t := tracker.New(proxy, tracker.Options{
			Interval:    genFlags.interval,
			MaxAttempts: genFlags.maxAttempts,
			Synchronous: genFlags.sync,
			Printer:     i18n.Printer(locale),
			Logger:      &logger,
		})
		book := domain.NewLogbook(nil)

		ctx := cmd.Context()
		stream := &logStreamer{out: cmd.ErrOrStderr(), book: book}
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			stream.run(stop)
		}()
		res, err := t.Track(ctx, req, book)
		close(stop)
		<-done
		stream.flush()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.ImageURL)
		if genFlags.noDownload {
			return nil
		}
		return download(ctx, out, res)
	},
}

// logStreamer prints logbook entries as the tracker appends them.
type logStreamer struct {
	out     io.Writer
	book    *domain.Logbook
	printed int
}

func (s *logStreamer) run(stop <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *logStreamer) flush() {
	entries := s.book.Entries()
	for _, e := range entries[s.printed:] {
		fmt.Fprintf(s.out, "[%s] %s\n", e.Time.Format("15:04:05"), e.Message)
	}
	s.printed = len(entries)
}

func buildRequest(cmd *cobra.Command, args []string) (domain.GenerationRequest, error) {
	prompt := genFlags.prompt
	if prompt == "" {
		prompt = strings.Join(args, " ")
	}
	req := domain.GenerationRequest{
		Prompt:           prompt,
		AspectRatio:      domain.AspectRatio(genFlags.aspectRatio),
		OutputFormat:     domain.OutputFormat(genFlags.format),
		PromptUpsampling: genFlags.upsampling,
	}
	if cmd.Flags().Changed("seed") {
		seed := genFlags.seed
		req.Seed = &seed
	}
	if cmd.Flags().Changed("safety") {
		safety := genFlags.safety
		req.SafetyTolerance = &safety
	}
	if genFlags.image != "" {
		data, err := os.ReadFile(genFlags.image)
		if err != nil {
			return req, fmt.Errorf("read input image: %w", err)
		}
		img, err := inputimage.Normalize(data, inputimage.Options{MaxMegapixels: 4})
		if err != nil {
			return req, err
		}
		if img.Resized {
			logger.Info().Int("width", img.Width).Int("height", img.Height).Msg("input image downscaled")
		}
		req.InputImage = img.Base64
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func download(ctx context.Context, out io.Writer, res tracker.Result) error {
	data, contentType, err := proxy.Download(ctx, res.ImageURL)
	if err != nil {
		return err
	}
	store, err := storage.NewFileStore(genFlags.outDir)
	if err != nil {
		return err
	}
	path, err := store.SaveResult(ctx, resultName(res), contentType, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s\n", path)
	return nil
}

// resultName names the saved file after the upstream job, falling back to
// the id carried in a polling URL.
func resultName(res tracker.Result) string {
	if res.JobID != "" {
		return res.JobID
	}
	if id := res.Handle.ID(); id != "" {
		return id
	}
	if u, err := url.Parse(res.Handle.PollingURL()); err == nil {
		return u.Query().Get("id")
	}
	return ""
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genFlags.prompt, "prompt", "p", "", "text prompt (or pass it as arguments)")
	f.StringVarP(&genFlags.image, "image", "i", "", "path to an input image (jpeg, png, gif, webp, avif)")
	f.IntVar(&genFlags.seed, "seed", 0, "seed for reproducible output (random when unset)")
	f.StringVar(&genFlags.aspectRatio, "aspect-ratio", string(domain.DefaultAspectRatio), "one of 1:1, 16:9, 9:16, 4:3, 3:4")
	f.StringVar(&genFlags.format, "format", string(domain.DefaultOutputFormat), "output format: jpeg or png")
	f.BoolVar(&genFlags.upsampling, "upsampling", false, "let the model expand the prompt")
	f.IntVar(&genFlags.safety, "safety", domain.DefaultSafetyTolerance, "safety tolerance 0 (strict) to 6 (permissive)")
	f.BoolVar(&genFlags.sync, "sync", false, "accept a result returned directly by the submit call")
	f.DurationVar(&genFlags.interval, "interval", tracker.DefaultInterval, "delay between status polls")
	f.IntVar(&genFlags.maxAttempts, "max-attempts", tracker.DefaultMaxAttempts, "poll attempts before giving up")
	f.StringVarP(&genFlags.outDir, "out-dir", "o", ".", "directory for the downloaded image")
	f.BoolVar(&genFlags.noDownload, "no-download", false, "print the result URL without downloading it")
	rootCmd.AddCommand(generateCmd)
}
