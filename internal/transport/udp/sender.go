// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"vizpipe/internal/log"
	"vizpipe/internal/transport"
)

var ErrSenderClosed = errors.New("UDP sender is closed")

// UDPSender handles sending data packets over UDP.
type UDPSender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex // Protects conn during Close
	closed     bool
}

// NewUDPSender creates a new UDPSender targeting the specified address.
// The address should be in the format "host:port", e.g., "127.0.0.1:9090".
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local address: the kernel picks an ephemeral port.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	log.Infof("UDP Sender: Connection established to %s", conn.RemoteAddr())

	return &UDPSender{
		conn:       conn,
		targetAddr: udpAddr,
	}, nil
}

// Target returns the resolved destination address.
func (s *UDPSender) Target() string {
	return s.targetAddr.String()
}

// Send transmits the given byte slice as a UDP packet.
// It is safe for concurrent use, although typically called sequentially by the publisher.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSenderClosed
	}
	_, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		log.Debugf("UDP Sender: Error sending packet: %v", err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	log.Infof("UDP Sender: Closing connection to %s", s.conn.RemoteAddr())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

var _ transport.Transport = (*UDPSender)(nil)
