package cmd

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"iox16/protocol"
)

var (
	cyan   = color.New(color.FgCyan).SprintfFunc()
	yellow = color.New(color.FgHiYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
)

func newBar(length int, text string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		length,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(text),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// parseAddr accepts 0..254, plus "all" or 255 for the broadcast address
// when broadcast is allowed.
func parseAddr(s string, broadcast bool) (uint8, error) {
	if strings.EqualFold(s, "all") {
		s = strconv.Itoa(protocol.BroadcastAddress)
	}
	v, err := parseUint(s, 8)
	if err != nil {
		return 0, fmt.Errorf("address %q: %w", s, err)
	}
	if v == protocol.BroadcastAddress && !broadcast {
		return 0, fmt.Errorf("address %d is the broadcast address", v)
	}
	return uint8(v), nil
}

func parseAddrChannel(args []string) (uint8, int, error) {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return 0, 0, err
	}
	ch, err := parseChannel(args[1])
	return addr, ch, err
}

func parseChannel(s string) (int, error) {
	v, err := parseUint(s, 8)
	if err != nil || v >= protocol.NumInputs {
		return 0, fmt.Errorf("channel %q must be 0..%d", s, protocol.NumInputs-1)
	}
	return int(v), nil
}

func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}

func parseInt16(s string) (int16, error) {
	v, err := strconv.ParseInt(s, 0, 16)
	return int16(v), err
}

// parseDuty accepts a raw duty cycle or a percentage such as "37.5%".
func parseDuty(s string) (uint16, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || f < 0 || f > 100 {
			return 0, fmt.Errorf("duty %q must be 0%%..100%%", s)
		}
		return uint16(math.Round(f * protocol.MaxDuty / 100)), nil
	}
	v, err := parseUint(s, 16)
	if err != nil || v > protocol.MaxDuty {
		return 0, fmt.Errorf("duty %q must be 0..%d", s, protocol.MaxDuty)
	}
	return uint16(v), nil
}

func parseAssignment(kv string) (int, uint16, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok {
		return 0, 0, fmt.Errorf("expected CH=DUTY, got %q", kv)
	}
	ch, err := parseChannel(k)
	if err != nil {
		return 0, 0, err
	}
	d, err := parseDuty(v)
	return ch, d, err
}

func version(v [3]uint8) string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

func flagNames(flags uint8) string {
	var names []string
	if flags&protocol.StatusDefaults != 0 {
		names = append(names, yellow("defaults"))
	}
	if flags&protocol.StatusConfigPending != 0 {
		names = append(names, yellow("config pending"))
	}
	if flags&protocol.StatusOutputFault != 0 {
		names = append(names, red("output fault"))
	}
	if flags&protocol.StatusStale != 0 {
		names = append(names, red("stale inputs"))
	}
	if len(names) == 0 {
		return green("ok")
	}
	return strings.Join(names, ", ")
}

func channelList(mask uint16) string {
	var chs []string
	for ch := 0; ch < protocol.NumInputs; ch++ {
		if mask&(1<<ch) != 0 {
			chs = append(chs, strconv.Itoa(ch))
		}
	}
	if len(chs) == 0 {
		return "-"
	}
	return strings.Join(chs, " ")
}

func printStatus(w io.Writer, st protocol.Status) {
	fmt.Fprintf(w, "address:       %d\n", st.Address)
	fmt.Fprintf(w, "firmware:      v%s (protocol %d)\n", version(st.Version), st.ProtocolVersion)
	fmt.Fprintf(w, "uptime:        %s\n", time.Duration(st.Uptime)*time.Second)
	fmt.Fprintf(w, "state:         %s\n", flagNames(st.Flags))
	fmt.Fprintf(w, "stale inputs:  %s\n", channelList(st.StaleMask))
	fmt.Fprintf(w, "crc errors:    %d\n", st.CRCErrors)
	fmt.Fprintf(w, "timeouts:      %d\n", st.Timeouts)
	fmt.Fprintf(w, "output faults: %d\n", st.OutputFaults)
}

func printValues(w io.Writer, v [protocol.NumInputs]int16) {
	for i, x := range v {
		fmt.Fprintf(w, "%s %6d", cyan("in%-2d", i), x)
		if i%4 == 3 {
			fmt.Fprintln(w)
		} else {
			fmt.Fprint(w, "   ")
		}
	}
}

func printOutputs(w io.Writer, o protocol.OutputState) {
	for i, d := range o.Duty {
		fmt.Fprintf(w, "%s %5d %6.2f%%  %5d Hz\n", cyan("out%-2d", i), d,
			float64(d)*100/protocol.MaxDuty, o.Frequencies[i/2])
	}
}

func stddev(s protocol.Stats) float64 {
	if s.Count == 0 {
		return 0
	}
	mean := s.Mean()
	v := float64(s.SumSq)/float64(s.Count) - mean*mean
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

// since formats a threshold crossing time relative to the board clock.
// Zero means the threshold was never crossed.
func since(now, t uint32) string {
	if t == 0 {
		return "never"
	}
	return fmt.Sprintf("%s ago", (time.Duration(now-t) * time.Microsecond).Round(time.Millisecond))
}
