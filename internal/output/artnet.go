// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"dmx-life/internal/config"
	"dmx-life/internal/dmx"
)

// Art-Net wire constants
const (
	artNetID        = "Art-Net\x00"
	opDmx           = 0x5000
	opSync          = 0x5200
	protocolVersion = 14

	// ArtDmxHeaderSize is the ArtDmx header length before the channel data
	ArtDmxHeaderSize = 18
	// ArtSyncSize is the full ArtSync packet length
	ArtSyncSize = 14
)

// EncodeArtDmx builds an ArtDmx packet carrying a full universe
func EncodeArtDmx(seq uint8, netNum, subnet, universe int, frame *dmx.Frame) []byte {
	pkt := make([]byte, ArtDmxHeaderSize+dmx.UniverseSize)
	copy(pkt, artNetID)
	binary.LittleEndian.PutUint16(pkt[8:], opDmx)
	binary.BigEndian.PutUint16(pkt[10:], protocolVersion)
	pkt[12] = seq
	pkt[13] = 0 // physical
	pkt[14] = byte(subnet&0x0F)<<4 | byte(universe&0x0F)
	pkt[15] = byte(netNum & 0x7F)
	binary.BigEndian.PutUint16(pkt[16:], dmx.UniverseSize)
	copy(pkt[ArtDmxHeaderSize:], frame[:])
	return pkt
}

// EncodeArtSync builds an ArtSync packet
func EncodeArtSync() []byte {
	pkt := make([]byte, ArtSyncSize)
	copy(pkt, artNetID)
	binary.LittleEndian.PutUint16(pkt[8:], opSync)
	binary.BigEndian.PutUint16(pkt[10:], protocolVersion)
	return pkt
}

// ArtNet sends frames as ArtDmx datagrams to a broadcast or unicast address
type ArtNet struct {
	logger *slog.Logger
	ping   func(ctx context.Context, host string) bool
	write  func(conn *net.UDPConn, pkt []byte, dest *net.UDPAddr) error

	mu   sync.Mutex
	cfg  config.OutputConfig
	conn *net.UDPConn
	dest *net.UDPAddr
	seq  uint8
}

// NewArtNet creates an unstarted Art-Net transport
func NewArtNet(cfg config.OutputConfig, logger *slog.Logger) *ArtNet {
	cfg.Kind = config.KindArtNet
	return &ArtNet{
		logger: logger,
		ping:   Ping,
		write:  writeUDP,
		cfg:    cfg,
	}
}

// Kind implements Output
func (a *ArtNet) Kind() string { return config.KindArtNet }

// Start opens the UDP socket and resolves the destination
func (a *ArtNet) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startLocked()
}

func (a *ArtNet) startLocked() error {
	if a.conn != nil {
		return nil
	}

	c := a.cfg.ArtNet
	dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(c.Address, strconv.Itoa(c.Port)))
	if err != nil {
		return fmt.Errorf("resolve artnet target: %w", err)
	}

	// Go enables SO_BROADCAST on datagram sockets
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("open artnet socket: %w", err)
	}

	a.conn = conn
	a.dest = dest
	a.logger.Info("Art-Net output started", "target", dest.String(), "universe", c.Universe)
	return nil
}

// Stop closes the socket
func (a *ArtNet) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked()
}

func (a *ArtNet) stopLocked() error {
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	if err != nil {
		return fmt.Errorf("close artnet socket: %w", err)
	}
	a.logger.Info("Art-Net output stopped")
	return nil
}

// Started implements Output
func (a *ArtNet) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// SendFrame sends one ArtDmx packet, then an ArtSync if enabled.
// The sequence number advances on every attempt; ArtSync failures are ignored.
func (a *ArtNet) SendFrame(ctx context.Context, frame dmx.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return ErrNotStarted
	}

	c := a.cfg.ArtNet
	pkt := EncodeArtDmx(a.seq, c.Net, c.Subnet, c.Universe, &frame)
	a.seq++

	ctx, cancel := sendContext(ctx)
	defer cancel()
	deadline, _ := ctx.Deadline()
	_ = a.conn.SetWriteDeadline(deadline)

	if err := a.write(a.conn, pkt, a.dest); err != nil {
		return fmt.Errorf("send artnet to %s: %w", a.dest, err)
	}

	if c.Sync {
		if err := a.write(a.conn, EncodeArtSync(), a.dest); err != nil {
			a.logger.Debug("ArtSync send failed", "error", err)
		}
	}
	return nil
}

func writeUDP(conn *net.UDPConn, pkt []byte, dest *net.UDPAddr) error {
	_, err := conn.WriteToUDP(pkt, dest)
	return err
}

// IsAvailable is always true for broadcast targets; unicast peers are pinged
func (a *ArtNet) IsAvailable(ctx context.Context) bool {
	a.mu.Lock()
	host := a.cfg.ArtNet.Address
	ping := a.ping
	a.mu.Unlock()

	if isBroadcast(host) {
		return true
	}
	return ping(ctx, host)
}

// isBroadcast treats the limited broadcast and x.x.x.255 as broadcast
func isBroadcast(host string) bool {
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return false
	}
	return ip.Equal(net.IPv4bcast) || ip[3] == 255
}

// Status implements Output
func (a *ArtNet) Status(ctx context.Context) Status {
	a.mu.Lock()
	c := a.cfg.ArtNet
	st := Status{
		Kind:    config.KindArtNet,
		Started: a.conn != nil,
		ArtNet: &ArtNetStatus{
			Address:  c.Address,
			Port:     c.Port,
			Net:      c.Net,
			Subnet:   c.Subnet,
			Universe: c.Universe,
			Sync:     c.Sync,
			Sequence: a.seq,
		},
	}
	a.mu.Unlock()

	st.Available = a.IsAvailable(ctx)
	return st
}

// Config implements Output
func (a *ArtNet) Config() config.OutputConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// UpdateConfig replaces the settings, restarting the socket if it was open
func (a *ArtNet) UpdateConfig(cfg config.OutputConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg.Kind = config.KindArtNet
	a.cfg = cfg
	if a.conn == nil {
		return nil
	}

	if err := a.stopLocked(); err != nil {
		a.logger.Warn("Art-Net stop during reconfigure failed", "error", err)
	}
	time.Sleep(restartPause)
	return a.startLocked()
}
