package server

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/DataRecce/recce-sub014/pkg/protocol"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// Start launches the session goroutines: a reader bound to the current
// connection, the heartbeat writer, and the event loop.
func (s *Session) Start() {
	go s.ReadLoop(s.currentConn())
	go s.WriteLoop()
	go s.EventLoop()
}

func (s *Session) currentConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) isCurrentConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

// ReadLoop reads frames from conn until it fails or the session closes.
// A reader displaced by a resume (its conn is no longer the session's)
// exits without closing the session; the resumed connection gets its own
// reader.
func (s *Session) ReadLoop(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	defer func() {
		if s.isCurrentConn(conn) {
			s.Close()
		}
	}()

	conn.SetReadLimit(s.config.MaxMessageSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if s.isCurrentConn(conn) && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.metrics.RecordReadError()
				s.logger.Warn("read failed", "error", err)
			}
			return
		}

		s.UpdateLastActive()
		s.bytesReceived.Add(uint64(len(msg)))
		s.metrics.RecordBytesReceived(len(msg))

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.logger.Warn("frame decode failed", "error", err)
			s.sendError(protocol.NewError(protocol.ErrInvalidFrame, "malformed frame"))
			continue
		}

		switch frame.Type {
		case protocol.FrameEvent:
			s.handleEventFrame(frame.Payload)

		case protocol.FrameControl:
			s.handleControlFrame(frame.Payload)

		case protocol.FrameAck:
			s.handleAckFrame(frame.Payload)

		case protocol.FrameHandshake:
			// The handshake happened before the loops started.
			s.logger.Warn("unexpected handshake frame on established session")

		default:
			s.logger.Warn("unknown frame type", "type", uint8(frame.Type))
		}
	}
}

// handleEventFrame decodes an event and queues it for the event loop.
func (s *Session) handleEventFrame(payload []byte) {
	ev, err := protocol.DecodeEvent(payload)
	if err != nil {
		s.logger.Warn("event decode failed", "error", err)
		s.sendError(protocol.NewError(protocol.ErrInvalidEvent, "malformed event"))
		return
	}
	if err := s.QueueEvent(ev); err != nil {
		s.logger.Warn("event dropped",
			"event_type", ev.Type.String(),
			"error", err)
		s.sendError(protocol.NewError(protocol.ErrRateLimited, "event queue full"))
	}
}

// handleControlFrame handles ping, pong, resync, and close.
func (s *Session) handleControlFrame(payload []byte) {
	ct, data, err := protocol.DecodeControl(payload)
	if err != nil {
		s.logger.Warn("control decode failed", "error", err)
		return
	}

	switch ct {
	case protocol.ControlPing:
		if pp, ok := data.(*protocol.PingPong); ok {
			s.sendPong(pp.Timestamp)
		}

	case protocol.ControlPong:
		s.logger.Debug("pong received")

	case protocol.ControlResyncRequest:
		rr, ok := data.(*protocol.ResyncRequest)
		if !ok {
			return
		}
		// Resync renders views, so it must run on the event loop.
		if err := s.Dispatch(func() { s.resyncClient(rr.LastSeq) }); err != nil {
			s.logger.Warn("resync dispatch failed", "error", err)
		}

	case protocol.ControlClose:
		if cm, ok := data.(*protocol.CloseMessage); ok {
			s.logger.Info("client closing",
				"reason", cm.Reason.String(),
				"message", cm.Message)
		}
		s.Close()
	}
}

// handleAckFrame records the client's patch acknowledgment.
func (s *Session) handleAckFrame(payload []byte) {
	ack, err := protocol.DecodeAck(payload)
	if err != nil {
		s.logger.Warn("ack decode failed", "error", err)
		return
	}
	if ack.LastSeq > s.ackSeq.Load() {
		s.ackSeq.Store(ack.LastSeq)
	}
}

// resyncClient brings a lagging client current: replay the retained patch
// frames when the gap is covered by history, otherwise rebuild every slot
// container. Runs on the event loop.
func (s *Session) resyncClient(lastSeq uint64) {
	if frames, ok := s.history.FramesSince(lastSeq); ok {
		for _, f := range frames {
			if err := s.writeFrame(f); err != nil {
				s.logger.Error("resync replay failed", "error", err)
				s.closeInternal()
				return
			}
		}
		s.logger.Info("resynced by replay",
			"last_seq", lastSeq,
			"frames", len(frames))
		return
	}

	s.sendResyncPatches(s.fullRenderPatches())
	s.logger.Info("resynced by full render", "last_seq", lastSeq)
}

// WriteLoop sends heartbeat pings and enforces the idle timeout. It runs
// until the session closes or a ping fails; a failed ping means the
// connection is dead and the reader will notice too.
func (s *Session) WriteLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.config.IdleTimeout > 0 && s.idleFor() > s.config.IdleTimeout {
				s.logger.Info("closing idle session",
					"idle", s.idleFor().Round(time.Second).String())
				s.SendClose(protocol.CloseGoingAway, "session idle")
				s.Close()
				return
			}
			if err := s.sendPing(); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// EventLoop processes queued events and dispatched callbacks, one at a
// time. It is the only goroutine that touches slot views.
func (s *Session) EventLoop() {
	s.eventLoopRunning.Store(true)
	defer s.eventLoopRunning.Store(false)

	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)

		case fn := <-s.dispatchCh:
			s.executeDispatch(fn)

		case <-s.done:
			return
		}
	}
}

// writeFrame writes one encoded frame under the write lock.
func (s *Session) writeFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNoConnection
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.metrics.RecordWriteError()
		return err
	}
	s.bytesSent.Add(uint64(len(data)))
	s.metrics.RecordBytesSent(len(data))
	return nil
}

// maxPatchPayload leaves headroom under the frame payload cap for the
// envelope around the patch list: the sequence varint in a patch frame,
// and the control type plus FromSeq varint in a resync frame.
const maxPatchPayload = protocol.MaxPayloadSize - 32

// splitPatchBatch splits patches into sub-batches that each encode within
// one frame, preserving order. A single patch no frame can carry is
// returned in oversized; the caller must fail loudly rather than let the
// 16-bit length field truncate it on the wire.
func splitPatchBatch(patches []vdom.Patch) (batches [][]vdom.Patch, oversized []vdom.Patch) {
	if len(patches) == 0 {
		return nil, nil
	}
	if encodedPatchSize(patches) <= maxPatchPayload {
		return [][]vdom.Patch{patches}, nil
	}
	if len(patches) == 1 {
		return nil, patches
	}
	mid := len(patches) / 2
	left, leftOver := splitPatchBatch(patches[:mid])
	right, rightOver := splitPatchBatch(patches[mid:])
	return append(left, right...), append(leftOver, rightOver...)
}

func encodedPatchSize(patches []vdom.Patch) int {
	return len(protocol.EncodePatches(&protocol.PatchesFrame{
		Patches: protocol.PatchesFromVDOM(patches),
	}))
}

// sendPatches encodes patches into sequenced frames, records them for
// resume replay, and writes them out. A batch too large for one frame is
// split across several; only the last carries FlagFinal, so the client
// can defer painting until the batch is complete. A write failure closes
// the session; the client recovers missed frames when it reconnects.
func (s *Session) sendPatches(patches []vdom.Patch) {
	if len(patches) == 0 || s.closed.Load() {
		return
	}
	batches, oversized := splitPatchBatch(patches)
	s.reportOversized(oversized)
	for i, batch := range batches {
		var flags protocol.FrameFlags
		if i == len(batches)-1 {
			flags = protocol.FlagFinal
		}
		if !s.sendPatchFrame(batch, flags) {
			return
		}
	}
}

// sendPatchFrame writes one sequenced patch frame, reporting false when
// the write failed and the session is closing.
func (s *Session) sendPatchFrame(batch []vdom.Patch, flags protocol.FrameFlags) bool {
	seq := s.sendSeq.Add(1)
	pf := &protocol.PatchesFrame{
		Seq:     seq,
		Patches: protocol.PatchesFromVDOM(batch),
	}
	frame := protocol.NewFrame(protocol.FramePatches, protocol.EncodePatches(pf))
	frame.Flags |= flags
	data := frame.Encode()
	s.history.Add(seq, data)

	s.patchFrames.Add(1)
	s.patchesSent.Add(uint64(len(batch)))
	s.metrics.RecordPatchesSent(len(batch))

	if err := s.writeFrame(data); err != nil {
		s.logger.Error("patch write failed",
			"seq", seq,
			"error", err)
		s.closeInternal()
		return false
	}
	return true
}

// reportOversized handles patches that cannot fit a frame at all. The
// frame never goes out, so the wire stays consistent; the client is told
// the update was lost instead of silently missing it.
func (s *Session) reportOversized(patches []vdom.Patch) {
	if len(patches) == 0 {
		return
	}
	for _, p := range patches {
		s.logger.Error("patch exceeds frame capacity, dropped",
			"op", p.Op.String(),
			"hid", p.HID)
	}
	s.sendError(protocol.NewError(protocol.ErrServerError, "update too large to deliver"))
}

// sendResyncPatches carries a rebuild in a resync control frame. Unlike a
// plain patch frame it tells the client to reset its sequence tracking to
// FromSeq, so the rebuild does not look like a gap. A rebuild too large
// for one frame continues in ordinary sequenced patch frames right after
// the control frame.
func (s *Session) sendResyncPatches(patches []vdom.Patch) {
	if len(patches) == 0 || s.closed.Load() {
		return
	}
	batches, oversized := splitPatchBatch(patches)
	s.reportOversized(oversized)
	if len(batches) == 0 {
		return
	}

	seq := s.sendSeq.Add(1)
	rr := &protocol.ResyncResponse{
		Type:    protocol.ControlResyncPatches,
		FromSeq: seq,
		Patches: protocol.PatchesFromVDOM(batches[0]),
	}
	data := protocol.NewFrame(protocol.FrameControl,
		protocol.EncodeControl(protocol.ControlResyncPatches, rr)).Encode()
	s.history.Add(seq, data)

	s.patchFrames.Add(1)
	s.patchesSent.Add(uint64(len(batches[0])))
	s.metrics.RecordPatchesSent(len(batches[0]))

	if err := s.writeFrame(data); err != nil {
		s.logger.Error("resync write failed",
			"seq", seq,
			"error", err)
		s.closeInternal()
		return
	}

	rest := batches[1:]
	for i, batch := range rest {
		var flags protocol.FrameFlags
		if i == len(rest)-1 {
			flags = protocol.FlagFinal
		}
		if !s.sendPatchFrame(batch, flags) {
			return
		}
	}
}

// sendError sends a protocol error frame. Write failures are logged only;
// if the connection is dead the read loop tears the session down.
func (s *Session) sendError(em *protocol.ErrorMessage) {
	if s.closed.Load() {
		return
	}
	data := protocol.NewFrame(protocol.FrameError, protocol.EncodeErrorMessage(em)).Encode()
	if err := s.writeFrame(data); err != nil {
		s.logger.Debug("error frame write failed", "error", err)
	}
}

func (s *Session) sendControl(ct protocol.ControlType, payload any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	data := protocol.NewFrame(protocol.FrameControl, protocol.EncodeControl(ct, payload)).Encode()
	return s.writeFrame(data)
}

func (s *Session) sendPing() error {
	return s.sendControl(protocol.ControlPing, &protocol.PingPong{
		Timestamp: uint64(time.Now().UnixMilli()),
	})
}

func (s *Session) sendPong(timestamp uint64) {
	if err := s.sendControl(protocol.ControlPong, &protocol.PingPong{Timestamp: timestamp}); err != nil {
		s.logger.Debug("pong write failed", "error", err)
	}
}

// SendClose tells the client why the session is ending. It does not close
// the session itself.
func (s *Session) SendClose(reason protocol.CloseReason, message string) {
	data := protocol.NewFrame(protocol.FrameControl,
		protocol.EncodeControl(protocol.ControlClose, &protocol.CloseMessage{
			Reason:  reason,
			Message: message,
		})).Encode()
	if err := s.writeFrame(data); err != nil {
		s.logger.Debug("close frame write failed", "error", err)
	}
}

// Resume swaps in a fresh connection after a reconnect and closes the old
// one. lastSeq is the last patch sequence the client saw; the caller
// decides between replay and rebuild. If the session goroutines have
// exited, channels are reinitialized and NeedsRestart reports true.
func (s *Session) Resume(conn *websocket.Conn, lastSeq uint64) {
	s.mu.Lock()
	oldConn := s.conn
	s.conn = conn
	s.mu.Unlock()

	if oldConn != nil && oldConn != conn {
		_ = oldConn.Close()
	}

	s.closed.Store(false)
	s.UpdateLastActive()
	s.markEvent()
	if lastSeq > s.ackSeq.Load() {
		s.ackSeq.Store(lastSeq)
	}

	select {
	case <-s.done:
		s.mu.Lock()
		s.done = make(chan struct{})
		s.events = make(chan *protocol.Event, s.config.MaxEventQueue)
		s.dispatchCh = make(chan func(), dispatchQueueSize)
		s.mu.Unlock()
	default:
	}

	s.logger.Info("session resumed", "last_seq", lastSeq)
}

// NeedsRestart reports whether the session goroutines have exited and
// Start must be called again. Meaningful right after Resume; a session
// resumed while its loops are still running only needs a new reader.
func (s *Session) NeedsRestart() bool {
	return !s.eventLoopRunning.Load()
}
