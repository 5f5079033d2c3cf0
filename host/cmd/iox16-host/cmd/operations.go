package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"iox16/host/bus"
	"iox16/protocol"
)

// session is what an operation needs: an open master and somewhere to print.
type session struct {
	master *bus.Master
	out    io.Writer
}

// operation is a bus command available both as a subcommand and in the
// interactive shell.
type operation struct {
	Use     string // name followed by the argument synopsis
	Short   string
	MinArgs int
	MaxArgs int
	Run     func(ctx context.Context, s *session, args []string) error
}

func (op operation) name() string {
	return strings.Fields(op.Use)[0]
}

func (op operation) checkArgs(args []string) error {
	if len(args) < op.MinArgs || len(args) > op.MaxArgs {
		return fmt.Errorf("usage: %s", op.Use)
	}
	return nil
}

func (op operation) command() *cobra.Command {
	return &cobra.Command{
		Use:   op.Use,
		Short: op.Short,
		Args: func(cmd *cobra.Command, args []string) error {
			return op.checkArgs(args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openMaster()
			if err != nil {
				return err
			}
			defer m.Close()
			return op.Run(cmd.Context(), &session{master: m, out: os.Stdout}, args)
		},
	}
}

var operations = []operation{
	{Use: "scan [FIRST [LAST]]", Short: "find boards on the bus", MaxArgs: 2, Run: runScan},
	{Use: "ping ADDR", Short: "check that a board answers", MinArgs: 1, MaxArgs: 1, Run: runPing},
	{Use: "status ADDR", Short: "print board status and error counters", MinArgs: 1, MaxArgs: 1, Run: runStatus},
	{Use: "info ADDR", Short: "print board name and firmware version", MinArgs: 1, MaxArgs: 1, Run: runInfo},
	{Use: "read ADDR", Short: "read all inputs", MinArgs: 1, MaxArgs: 1, Run: runRead},
	{Use: "avg ADDR", Short: "read input averages since the last call", MinArgs: 1, MaxArgs: 1, Run: runAverages},
	{Use: "stats ADDR CH", Short: "read and reset the statistics of one input", MinArgs: 2, MaxArgs: 2, Run: runStats},
	{Use: "set ADDR DUTY... | set ADDR CH=DUTY...", Short: "set output duty cycles (raw 0..32768 or percent)", MinArgs: 2, MaxArgs: 17, Run: runSet},
	{Use: "outputs ADDR", Short: "print output duty cycles and frequencies", MinArgs: 1, MaxArgs: 1, Run: runOutputs},
	{Use: "freq ADDR HZ...", Short: "set the PWM frequency of one or all 8 output groups", MinArgs: 2, MaxArgs: 9, Run: runFrequencies},
	{Use: "calibrate ADDR CH [MUL DIV ADD MIN MAX]", Short: "print or set the calibration of one input", MinArgs: 2, MaxArgs: 7, Run: runCalibrate},
	{Use: "threshold ADDR CH [HIGH LOW DEBOUNCE_US COUNT]", Short: "print or set the threshold of one input", MinArgs: 2, MaxArgs: 6, Run: runThreshold},
	{Use: "thresholds ADDR", Short: "print which inputs are above or below their thresholds", MinArgs: 1, MaxArgs: 1, Run: runThresholds},
	{Use: "configure ADDR [NEW_ADDR [BAUD]]", Short: "print or store the board address and baud rate", MinArgs: 1, MaxArgs: 3, Run: runConfigure},
	{Use: "reboot ADDR", Short: "restart a board, or all boards", MinArgs: 1, MaxArgs: 1, Run: runReboot},
}

func runScan(ctx context.Context, s *session, args []string) error {
	opts := bus.DefaultScanOptions()
	if len(args) > 0 {
		a, err := parseAddr(args[0], false)
		if err != nil {
			return err
		}
		opts.First = a
	}
	if len(args) > 1 {
		a, err := parseAddr(args[1], false)
		if err != nil {
			return err
		}
		opts.Last = a
	}
	if opts.Last < opts.First {
		return fmt.Errorf("empty address range %d..%d", opts.First, opts.Last)
	}

	pb := newBar(int(opts.Last)-int(opts.First)+1, "scanning", s.out)
	opts.Progress = func(addr uint8, found bool) {
		_ = pb.Add(1)
	}
	boards, err := s.master.Scan(ctx, opts)
	_ = pb.Finish()
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}

	if len(boards) == 0 {
		fmt.Fprintln(s.out, yellow("no boards found"))
		return nil
	}
	for _, b := range boards {
		fmt.Fprintf(s.out, "%s  %-32s  v%s  %s\n", cyan("%3d", b.Address), b.Info.Name,
			version(b.Info.Version), flagNames(b.Status.Flags))
	}
	return nil
}

func runPing(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := s.master.Ping(ctx, addr); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "board %d: %s in %s\n", addr, green("ok"), time.Since(start).Round(time.Microsecond))
	return nil
}

func runStatus(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	st, err := s.master.Status(ctx, addr)
	if err != nil {
		return err
	}
	printStatus(s.out, st)
	return nil
}

func runInfo(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	info, err := s.master.Info(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "name:     %s\n", info.Name)
	fmt.Fprintf(s.out, "firmware: v%s (protocol %d)\n", version(info.Version), info.ProtocolVersion)
	fmt.Fprintf(s.out, "uptime:   %s\n", time.Duration(info.Uptime)*time.Second)
	return nil
}

func runRead(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	v, err := s.master.ReadInputs(ctx, addr)
	if err != nil {
		return err
	}
	printValues(s.out, v)
	return nil
}

func runAverages(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	v, err := s.master.ReadAverages(ctx, addr)
	if err != nil {
		return err
	}
	printValues(s.out, v)
	return nil
}

func runStats(ctx context.Context, s *session, args []string) error {
	addr, ch, err := parseAddrChannel(args)
	if err != nil {
		return err
	}
	st, err := s.master.ReadStats(ctx, addr, ch)
	if err != nil {
		return err
	}
	if st.Count == 0 {
		fmt.Fprintf(s.out, "input %d: %s\n", ch, yellow("no samples"))
		return nil
	}
	fmt.Fprintf(s.out, "input %d: count %d  mean %.1f  stddev %.1f  min %d  max %d\n",
		ch, st.Count, st.Mean(), stddev(st), st.Min, st.Max)
	return nil
}

func runSet(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], true)
	if err != nil {
		return err
	}
	values := args[1:]

	var duty [protocol.NumOutputs]uint16
	switch {
	case strings.Contains(values[0], "="):
		if addr == protocol.BroadcastAddress {
			return fmt.Errorf("CH=DUTY needs a single board, give all 16 values to broadcast")
		}
		state, err := s.master.Outputs(ctx, addr)
		if err != nil {
			return err
		}
		duty = state.Duty
		for _, kv := range values {
			ch, d, err := parseAssignment(kv)
			if err != nil {
				return err
			}
			duty[ch] = d
		}
	case len(values) == 1:
		d, err := parseDuty(values[0])
		if err != nil {
			return err
		}
		for i := range duty {
			duty[i] = d
		}
	case len(values) == protocol.NumOutputs:
		for i, v := range values {
			if duty[i], err = parseDuty(v); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("give 1 or %d duty cycles, or CH=DUTY pairs", protocol.NumOutputs)
	}

	if addr == protocol.BroadcastAddress {
		return s.master.BroadcastOutputs(ctx, duty)
	}
	if err := s.master.SetOutputs(ctx, addr, duty); err != nil {
		return err
	}
	fmt.Fprintln(s.out, green("ok"))
	return nil
}

func runOutputs(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	state, err := s.master.Outputs(ctx, addr)
	if err != nil {
		return err
	}
	printOutputs(s.out, state)
	return nil
}

func runFrequencies(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	values := args[1:]
	if len(values) != 1 && len(values) != protocol.NumOutputGroups {
		return fmt.Errorf("give 1 or %d frequencies", protocol.NumOutputGroups)
	}

	var hz [protocol.NumOutputGroups]uint16
	for i := range hz {
		v := values[0]
		if len(values) > 1 {
			v = values[i]
		}
		f, err := parseUint(v, 16)
		if err != nil {
			return err
		}
		if f < protocol.MinFrequency || f > protocol.MaxFrequency {
			return fmt.Errorf("frequency %d out of range %d..%d Hz", f, protocol.MinFrequency, protocol.MaxFrequency)
		}
		hz[i] = uint16(f)
	}
	if err := s.master.SetFrequencies(ctx, addr, hz); err != nil {
		return err
	}
	fmt.Fprintln(s.out, green("ok"))
	return nil
}

func runCalibrate(ctx context.Context, s *session, args []string) error {
	addr, ch, err := parseAddrChannel(args)
	if err != nil {
		return err
	}
	switch len(args) {
	case 2:
		c, err := s.master.Calibration(ctx, addr, ch)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "input %d: value = mV * %d / %d + %d, limited to %d..%d\n",
			ch, c.Multiply, c.Divide, c.Add, c.Min, c.Max)
		return nil
	case 7:
		var v [5]int16
		for i := range v {
			if v[i], err = parseInt16(args[2+i]); err != nil {
				return err
			}
		}
		c := protocol.Calibration{Multiply: v[0], Divide: v[1], Add: v[2], Min: v[3], Max: v[4]}
		if !c.Valid() {
			return fmt.Errorf("invalid calibration %+v", c)
		}
		if err := s.master.SetCalibration(ctx, addr, ch, c); err != nil {
			return err
		}
		fmt.Fprintln(s.out, green("stored"))
		return nil
	}
	return fmt.Errorf("usage: calibrate ADDR CH [MUL DIV ADD MIN MAX]")
}

func runThreshold(ctx context.Context, s *session, args []string) error {
	addr, ch, err := parseAddrChannel(args)
	if err != nil {
		return err
	}
	switch len(args) {
	case 2:
		t, err := s.master.Threshold(ctx, addr, ch)
		if err != nil {
			return err
		}
		times, err := s.master.ThresholdTimes(ctx, addr, ch)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "input %d: high %d  low %d  debounce %dus / %d samples\n",
			ch, t.High, t.Low, t.DebounceTime, t.DebounceCount)
		fmt.Fprintf(s.out, "last above: %s\n", since(times.Now, times.High))
		fmt.Fprintf(s.out, "last below: %s\n", since(times.Now, times.Low))
		return nil
	case 6:
		high, err := parseInt16(args[2])
		if err != nil {
			return err
		}
		low, err := parseInt16(args[3])
		if err != nil {
			return err
		}
		debounce, err := parseUint(args[4], 32)
		if err != nil {
			return err
		}
		count, err := parseUint(args[5], 16)
		if err != nil {
			return err
		}
		t := protocol.Threshold{High: high, Low: low, DebounceTime: uint32(debounce), DebounceCount: uint16(count)}
		if err := s.master.SetThreshold(ctx, addr, ch, t); err != nil {
			return err
		}
		fmt.Fprintln(s.out, green("stored"))
		return nil
	}
	return fmt.Errorf("usage: threshold ADDR CH [HIGH LOW DEBOUNCE_US COUNT]")
}

func runThresholds(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], false)
	if err != nil {
		return err
	}
	st, err := s.master.ThresholdStates(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "above: %s\n", channelList(st.Above))
	fmt.Fprintf(s.out, "below: %s\n", channelList(st.Below))
	return nil
}

func runConfigure(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], true)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		if addr == protocol.BroadcastAddress {
			return fmt.Errorf("cannot read the configuration of all boards")
		}
		c, err := s.master.BoardConfig(ctx, addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "stored address %d, baud %d\n", c.Address, c.Baud)
		return nil
	}

	next, err := parseAddr(args[1], true)
	if err != nil {
		return err
	}
	c := protocol.BoardConfig{Address: next, Baud: protocol.DefaultBaud}
	if len(args) == 3 {
		baud, err := parseUint(args[2], 32)
		if err != nil {
			return err
		}
		c.Baud = uint32(baud)
	} else if addr != protocol.BroadcastAddress {
		cur, err := s.master.BoardConfig(ctx, addr)
		if err != nil {
			return err
		}
		c.Baud = cur.Baud
	}
	if err := s.master.SetBoardConfig(ctx, addr, c); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s, reboot the board to use address %d at %d baud\n", green("stored"), c.Address, c.Baud)
	return nil
}

func runReboot(ctx context.Context, s *session, args []string) error {
	addr, err := parseAddr(args[0], true)
	if err != nil {
		return err
	}
	if err := s.master.Reboot(ctx, addr); err != nil {
		return err
	}
	fmt.Fprintln(s.out, green("rebooting"))
	return nil
}
