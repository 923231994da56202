package bridge

import (
	"context"
	"encoding/hex"
	"strconv"

	"github.com/mil-ad/pmbridge/internal/protocol"
	"github.com/mil-ad/pmbridge/internal/sdk"
)

// parseFailedCode is reported by parse for a URL that does not decode.
const parseFailedCode = -1

func (b *Bridge) version(_ context.Context, cmd protocol.Command) (protocol.Message, error) {
	return protocol.OK(cmd.ID, protocol.NewVersion(sdk.Version())), nil
}

func (b *Bridge) parse(_ context.Context, cmd protocol.Command) (protocol.Message, error) {
	id, ok := sdk.ParseURL(cmd.Rest)
	if !ok {
		return protocol.NewResult(cmd.ID, false, parseFailedCode, protocol.Null), nil
	}
	return protocol.OK(cmd.ID, protocol.NewIdentifier(id)), nil
}

func (b *Bridge) connect(_ context.Context, cmd protocol.Command) (protocol.Message, error) {
	if b.sess.Active() {
		return nil, ErrAlreadyActive
	}
	raw := cmd.Rest
	if b.opts.Resolver != nil {
		resolved, err := b.opts.Resolver(raw)
		if err != nil {
			b.log.Debug("resolve device", "arg", raw, "err", err)
			return nil, ErrInvalidURL
		}
		raw = resolved
	}
	id, ok := sdk.ParseURL(raw)
	if !ok {
		return nil, ErrInvalidURL
	}
	if !b.sess.BeginConnect() {
		return nil, ErrAlreadyActive
	}
	b.log.Info("connecting", "name", id.Name, "serial", sdk.SerialString(id.Serial))
	b.dev.ConnectWifi(id.AccessKey)
	return protocol.OK(cmd.ID, nil), nil
}

// disconnect succeeds in every state; the link goes down asynchronously.
func (b *Bridge) disconnect(_ context.Context, cmd protocol.Command) (protocol.Message, error) {
	if b.sess.Active() {
		b.dev.Disconnect()
	}
	return protocol.OK(cmd.ID, nil), nil
}

func (b *Bridge) status(_ context.Context, cmd protocol.Command) (protocol.Message, error) {
	state := b.sess.State()
	return protocol.OK(cmd.ID, protocol.Status{
		Connected:    state == sdk.StateConnected,
		Connecting:   state == sdk.StateConnecting,
		BLEAvailable: b.ble.Load(),
	}), nil
}

// fetch is the request/correlate/encode triple shared by the single-shot
// commands.
func fetch[T any, P any](ctx context.Context, b *Bridge, cmd protocol.Command, op string,
	issue func(func(sdk.ResponseCode, T)), encode func(T) P) (protocol.Message, error) {
	if !b.sess.IsConnected() {
		return nil, ErrNotConnected
	}
	code, v, err := request(ctx, b, op, issue)
	if err != nil {
		return nil, err
	}
	if !code.OK() {
		return protocol.NewResult(cmd.ID, false, int(code), nil), nil
	}
	return protocol.NewResult(cmd.ID, true, int(code), encode(v)), nil
}

func (b *Bridge) info(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	return fetch(ctx, b, cmd, "info", b.dev.RequestGetInfo, protocol.NewInfo)
}

func (b *Bridge) monitor(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	return fetch(ctx, b, cmd, "monitor", b.dev.RequestGetMonitorData, protocol.NewMonitor)
}

func (b *Bridge) statistics(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	return fetch(ctx, b, cmd, "statistics", b.dev.RequestGetStatistics, protocol.NewStatistics)
}

func (b *Bridge) fgStatistics(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	return fetch(ctx, b, cmd, "fgstatistics", b.dev.RequestGetFgStatistics, protocol.NewFuelGauge)
}

func (b *Bridge) logFiles(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	return fetch(ctx, b, cmd, "logfiles", b.dev.RequestGetLogFileList, protocol.NewLogFiles)
}

// readLog sends the bytes as lowercase hex. A successful empty read carries
// no data; a failed read reports success:false with the device code.
func (b *Bridge) readLog(ctx context.Context, cmd protocol.Command) (protocol.Message, error) {
	if !b.sess.IsConnected() {
		return nil, ErrNotConnected
	}
	if len(cmd.Args) != 3 {
		return nil, ErrInvalidArgs
	}
	var n [3]uint32
	for i, a := range cmd.Args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, ErrInvalidArgs
		}
		n[i] = uint32(v)
	}
	fileID, offset, size := n[0], n[1], n[2]

	code, data, err := request(ctx, b, "readlog", func(cb func(sdk.ResponseCode, []byte)) {
		b.dev.RequestReadLogFile(fileID, offset, size, cb)
	})
	if err != nil {
		return nil, err
	}
	if code.OK() && len(data) > 0 {
		return protocol.NewResult(cmd.ID, true, int(code), hex.EncodeToString(data)), nil
	}
	return protocol.NewResult(cmd.ID, code.OK(), int(code), nil), nil
}
