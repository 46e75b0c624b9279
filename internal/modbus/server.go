// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package modbus

import (
	"encoding/binary"
	"log/slog"

	"github.com/tbrandon/mbserver"

	"dmx-life/internal/config"
	"dmx-life/internal/dmx"
)

const (
	// SceneRegister recalls the scene with this 1-based index when written
	SceneRegister = dmx.UniverseSize

	coilConnected = 0
	coilBlackout  = 1
)

// Target is the controller surface used by the Modbus mapping
type Target interface {
	Current() dmx.Frame
	Test(values []int) error
	Blackout() error
	Activate(name string) error
	SceneAt(index int) (string, bool)
	ConnectionStatus() dmx.ConnectionStatus
}

// Server is the Modbus TCP server
// Register mapping:
//   - Holding registers 0-511 = current output of channels 1-512 (value 0-255)
//   - Writing registers 0-511 sends an immediate frame built from the current output
//   - Holding register 512 = write N to recall the Nth scene (1-based); reads 0
//   - Coil 0 = output connected (read-only)
//   - Coil 1 = blackout (write-only, triggers blackout on write 1)
type Server struct {
	cfg    config.ModbusConfig
	target Target
	logger *slog.Logger
	mb     *mbserver.Server
}

// NewServer creates a new Modbus TCP server
func NewServer(cfg config.ModbusConfig, target Target, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		target: target,
		logger: logger,
	}
}

// Start starts the Modbus TCP server
func (s *Server) Start() error {
	s.mb = mbserver.NewServer()

	s.mb.RegisterFunctionHandler(3, s.handleReadHoldingRegisters)    // FC03
	s.mb.RegisterFunctionHandler(6, s.handleWriteSingleRegister)     // FC06
	s.mb.RegisterFunctionHandler(16, s.handleWriteMultipleRegisters) // FC16
	s.mb.RegisterFunctionHandler(1, s.handleReadCoils)               // FC01
	s.mb.RegisterFunctionHandler(5, s.handleWriteSingleCoil)         // FC05

	addr := s.cfg.Port
	if addr == "" {
		addr = ":502"
	}

	s.logger.Info("Modbus TCP server starting", "addr", addr)
	if err := s.mb.ListenTCP(addr); err != nil {
		return err
	}
	return nil
}

// Stop stops the Modbus TCP server
func (s *Server) Stop() {
	if s.mb != nil {
		s.mb.Close()
		s.logger.Info("Modbus TCP server stopped")
	}
}

// FC03: Read Holding Registers
func (s *Server) handleReadHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	startAddr := int(binary.BigEndian.Uint16(data[0:2]))
	quantity := int(binary.BigEndian.Uint16(data[2:4]))

	if quantity == 0 || startAddr+quantity > SceneRegister+1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	current := s.target.Current()

	resp := make([]byte, 1+quantity*2)
	resp[0] = byte(quantity * 2)
	for i := 0; i < quantity; i++ {
		var val uint16
		if reg := startAddr + i; reg < dmx.UniverseSize {
			val = uint16(current[reg])
		}
		binary.BigEndian.PutUint16(resp[1+i*2:], val)
	}
	return resp, &mbserver.Success
}

// FC06: Write Single Register (one channel or scene recall)
func (s *Server) handleWriteSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	addr := int(binary.BigEndian.Uint16(data[0:2]))
	value := binary.BigEndian.Uint16(data[2:4])

	if addr == SceneRegister {
		if exc := s.recallScene(int(value)); exc != nil {
			return []byte{}, exc
		}
		return data[:4], &mbserver.Success
	}
	if addr > SceneRegister {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	if exc := s.writeChannels(addr, []uint16{value}); exc != nil {
		return []byte{}, exc
	}
	s.logger.Debug("Modbus write", "ch", addr+1, "value", value)

	// Echo request as response
	return data[:4], &mbserver.Success
}

// FC16: Write Multiple Registers (consecutive channels)
func (s *Server) handleWriteMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	startAddr := int(binary.BigEndian.Uint16(data[0:2]))
	quantity := int(binary.BigEndian.Uint16(data[2:4]))
	byteCount := int(data[4])

	if quantity == 0 || startAddr+quantity > dmx.UniverseSize {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	if byteCount != quantity*2 || len(data) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[5+i*2:])
	}
	if exc := s.writeChannels(startAddr, values); exc != nil {
		return []byte{}, exc
	}

	s.logger.Debug("Modbus write multiple", "start", startAddr+1, "count", quantity)

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], uint16(startAddr))
	binary.BigEndian.PutUint16(resp[2:4], uint16(quantity))
	return resp, &mbserver.Success
}

// writeChannels overlays values onto the current output and sends it immediately
func (s *Server) writeChannels(start int, values []uint16) *mbserver.Exception {
	current := s.target.Current()
	for i, v := range values {
		current[start+i] = dmx.Clamp(int(v))
	}
	if err := s.target.Test(current.Values(dmx.UniverseSize - 1)); err != nil {
		s.logger.Warn("Modbus write failed", "start", start+1, "error", err)
		return &mbserver.SlaveDeviceFailure
	}
	return nil
}

func (s *Server) recallScene(index int) *mbserver.Exception {
	name, ok := s.target.SceneAt(index)
	if !ok {
		return &mbserver.IllegalDataValue
	}
	if err := s.target.Activate(name); err != nil {
		s.logger.Warn("Modbus scene recall failed", "scene", name, "error", err)
		return &mbserver.SlaveDeviceFailure
	}
	s.logger.Info("Modbus: scene recalled", "scene", name, "index", index)
	return nil
}

// FC01: Read Coils
func (s *Server) handleReadCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	startAddr := binary.BigEndian.Uint16(data[0:2])
	quantity := binary.BigEndian.Uint16(data[2:4])

	if quantity == 0 || startAddr+quantity > 2 {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	// Coil 1 always reads 0 (blackout is write-only)
	var coils byte
	if startAddr == coilConnected && s.target.ConnectionStatus().Connected {
		coils |= 0x01
	}

	return []byte{1, coils}, &mbserver.Success
}

// FC05: Write Single Coil (blackout)
func (s *Server) handleWriteSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	switch addr {
	case coilBlackout:
		if value == 0xFF00 {
			if err := s.target.Blackout(); err != nil {
				return []byte{}, &mbserver.SlaveDeviceFailure
			}
			s.logger.Info("Modbus: Blackout triggered")
		}
	case coilConnected:
		return []byte{}, &mbserver.IllegalFunction
	default:
		return []byte{}, &mbserver.IllegalDataAddress
	}

	// Echo request as response
	return data[:4], &mbserver.Success
}
