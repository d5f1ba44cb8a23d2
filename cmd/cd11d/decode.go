package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seisnet/cd11streams/cd11"
	"github.com/seisnet/cd11streams/config"
	"github.com/seisnet/cd11streams/rsdf"
	"github.com/seisnet/cd11streams/soh"
)

var (
	decodeVerifyCRC bool
	decodeSOH       bool
	decodeMaxFrame  int
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a capture of concatenated CD-1.1 frames",
	Long: `Decode reads concatenated CD-1.1 frames from a file, or stdin when the file is
omitted or "-", and prints one line per frame or malformed chunk.

With --soh the channel status of every data frame is extracted and boolean
issues are coalesced using the merge tolerances from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeVerifyCRC, "verify-crc", true, "verify the comm verification CRC")
	decodeCmd.Flags().BoolVar(&decodeSOH, "soh", false, "print coalesced state-of-health intervals")
	decodeCmd.Flags().IntVar(&decodeMaxFrame, "max-frame-size", cd11.DefaultMaxFrameSize, "largest frame accepted")
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var checker *soh.MergeChecker
	if decodeSOH {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		table, err := config.NewToleranceTable(cfg.SOH.MergeTolerance)
		if err != nil {
			return err
		}
		checker = soh.NewMergeChecker(table.Resolver())
	}
	return decodeStream(cmd.Context(), in, cmd.OutOrStdout(), checker)
}

// decodeStream prints every element of r. A non-nil checker also collects
// channel status issues and prints them coalesced at the end.
func decodeStream(ctx context.Context, r io.Reader, w io.Writer, checker *soh.MergeChecker) error {
	out := bufio.NewWriter(w)
	defer out.Flush()

	frames := cd11.NewFrameReader(r, decodeMaxFrame)
	decoder := cd11.NewDecoder(cd11.WithCRCVerification(decodeVerifyCRC))
	parser := rsdf.NewStatusParser(decodeVerifyCRC)

	var issues []soh.EnvironmentalIssueBoolean
	for n := 1; ; n++ {
		raw, err := frames.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}

		res := decoder.Decode(raw)
		fmt.Fprintf(out, "%d\t%s\n", n, describe(res))

		f, ok := res.AsFrame()
		if checker == nil || !ok || f.Type() != cd11.DataType {
			continue
		}
		rec := rsdf.NewRawStationDataFrame(f.Header.Creator, raw, time.Time{}, time.Time{}, time.Now())
		extract, err := parser.Parse(ctx, rec)
		if err != nil {
			fmt.Fprintf(out, "%d\tsoh: %v\n", n, err)
			continue
		}
		issues = append(issues, extract.Booleans...)
	}

	if checker != nil {
		for _, i := range checker.Coalesce(issues) {
			fmt.Fprintf(out, "soh\t%s\t%s\t%t\t%s\t%s\n", i.ChannelName, i.Type, i.Status,
				cd11.FormatTime(i.Start), cd11.FormatTime(i.End))
		}
	}
	return nil
}

// describe renders one decode result on a single line.
func describe(res cd11.FrameOrMalformed) string {
	if m, ok := res.AsMalformed(); ok {
		s := fmt.Sprintf("MALFORMED size=%d", len(m.Raw))
		if h, ok := m.PartialHeader(); ok {
			s += fmt.Sprintf(" type=%s seq=%d", h.FrameType, h.SequenceNumber)
		}
		return s + " error=" + m.Cause.Error()
	}

	f := res.Frame()
	s := fmt.Sprintf("%s seq=%d creator=%s dest=%s", f.Type(), f.Header.SequenceNumber, f.Header.Creator, f.Header.Destination)
	switch p := f.Payload.(type) {
	case *cd11.DataFrame:
		names := make([]string, len(p.Subframes))
		for i := range p.Subframes {
			names[i] = p.Subframes[i].Channel.String()
		}
		s += fmt.Sprintf(" time=%s length=%s channels=%s", cd11.FormatTime(p.NominalTime), p.FrameTimeLength, strings.Join(names, ","))
	case *cd11.ConnectionRequest:
		s += fmt.Sprintf(" station=%s type=%s version=%d.%d", p.Name, p.Type, p.MajorVersion, p.MinorVersion)
	case *cd11.ConnectionResponse:
		s += fmt.Sprintf(" responder=%s primary=%s:%d", p.Name, p.Primary.Addr, p.Primary.Port)
	case *cd11.Acknack:
		s += fmt.Sprintf(" frameset=%s lowest=%d highest=%d gaps=%d", p.Frameset, p.LowestSequence, p.HighestSequence, len(p.Gaps))
	case *cd11.Alert:
		s += fmt.Sprintf(" message=%q", p.Message)
	case *cd11.CommandRequest:
		s += fmt.Sprintf(" command=%q", p.Command)
	case *cd11.CommandResponse:
		s += fmt.Sprintf(" response=%q", p.Response)
	}
	return s
}
