package core

import "iox16/protocol"

// registerCommands installs every handler of the command set. Input and
// output handlers live in adc_commands.go and pwm_commands.go.
func (f *Firmware) registerCommands() {
	r := f.registry
	must := func(err error) {
		if err != nil {
			panic("register command: " + err.Error())
		}
	}

	must(r.Register(protocol.CmdPing, "ping", 0, f.handlePing))
	must(r.Register(protocol.CmdGetStatus, "get_status", 0, f.handleGetStatus))
	must(r.Register(protocol.CmdGetInfo, "get_info", 0, f.handleGetInfo))
	must(r.Register(protocol.CmdGetConfig, "get_config", 0, f.handleGetConfig))
	must(r.Register(protocol.CmdSetConfig, "set_config", protocol.BoardConfigSize, f.handleSetConfig))
	must(r.Register(protocol.CmdReboot, "reboot", 0, f.handleReboot))

	f.registerInputCommands()
	f.registerOutputCommands()
}

func (f *Firmware) handlePing(req, resp []byte) ([]byte, error) {
	return resp, nil
}

func (f *Firmware) handleGetStatus(req, resp []byte) ([]byte, error) {
	return f.Status().Append(resp), nil
}

// Status assembles the GET_STATUS report.
func (f *Firmware) Status() protocol.Status {
	ds := f.decoder.Stats()
	faults, failing := f.outputs.Faults()
	stale := f.inputs.StaleMask()

	var flags uint8
	if !f.settingsFound {
		flags |= protocol.StatusDefaults
	}
	if f.configPending {
		flags |= protocol.StatusConfigPending
	}
	if failing {
		flags |= protocol.StatusOutputFault
	}
	if stale != 0 {
		flags |= protocol.StatusStale
	}

	return protocol.Status{
		ProtocolVersion: protocol.ProtocolVersion,
		Version:         [3]uint8{protocol.VersionMajor, protocol.VersionMinor, protocol.VersionPatch},
		Address:         f.address,
		Flags:           flags,
		StaleMask:       stale,
		Uptime:          f.uptime.Seconds(),
		CRCErrors:       saturate16(ds.CRCErrors),
		Timeouts:        saturate16(ds.Timeouts),
		OutputFaults:    saturate16(faults),
	}
}

func (f *Firmware) handleGetInfo(req, resp []byte) ([]byte, error) {
	info := protocol.Info{
		Name:            f.cfg.Name,
		ProtocolVersion: protocol.ProtocolVersion,
		Version:         [3]uint8{protocol.VersionMajor, protocol.VersionMinor, protocol.VersionPatch},
		Uptime:          f.uptime.Seconds(),
	}
	return info.Append(resp), nil
}

// GET_CONFIG reports the stored configuration, which may differ from the
// active one until the next reboot.
func (f *Firmware) handleGetConfig(req, resp []byte) ([]byte, error) {
	return f.settings.Config.Append(resp), nil
}

func (f *Firmware) handleSetConfig(req, resp []byte) ([]byte, error) {
	cfg, err := protocol.DecodeBoardConfig(req)
	if err != nil || !cfg.Valid() {
		return nil, ErrInvalidValue
	}

	next := f.settings
	next.Config = cfg
	if err := f.persist(&next); err != nil {
		return nil, err
	}
	f.configPending = cfg != f.activeConfig
	DebugPrintln("[FW] config stored: address " + itoa(int(cfg.Address)) + ", baud " + utoa(cfg.Baud))
	return resp, nil
}

func (f *Firmware) handleReboot(req, resp []byte) ([]byte, error) {
	if f.rebooter == nil {
		return nil, ErrUnsupported
	}
	f.rebootPending = true
	return resp, nil
}

// persist stores next and makes it the current settings. The in-memory
// settings are untouched when storage fails.
func (f *Firmware) persist(next *Settings) error {
	if err := SaveSettings(f.storage, next); err != nil {
		DebugPrintln("[FW] settings store failed: " + err.Error())
		return &CommandError{Code: protocol.ErrCodeStorage, Err: err}
	}
	f.settings = *next
	f.settingsFound = true
	return nil
}

func saturate16(v uint32) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
