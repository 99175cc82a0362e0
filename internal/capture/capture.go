package capture

// Pcap trace of the encapsulation traffic the endpoint sends and receives.
// Bytes are recorded at the socket, so each record becomes one synthetic
// Ethernet/IP/TCP packet carrying exactly what crossed the connection.

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Tracer records bytes that crossed a connection from src to dst.
type Tracer interface {
	Record(src, dst net.Addr, payload []byte)
}

const snapLen = 65535

// Trace writes a pcap file of recorded payloads. It is safe for concurrent use.
type Trace struct {
	mu      sync.Mutex
	file    *os.File
	writer  *pcapgo.Writer
	seq     map[string]uint32
	packets int
	err     error
	now     func() time.Time
	once    sync.Once
}

var _ Tracer = (*Trace)(nil)

// Open creates path and writes the pcap file header.
func Open(path string) (*Trace, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file: %w", err)
	}
	t, err := NewTrace(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	t.file = file
	return t, nil
}

// NewTrace writes a pcap file header to w and returns a trace writing to it.
func NewTrace(w io.Writer) (*Trace, error) {
	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Trace{
		writer: writer,
		seq:    make(map[string]uint32),
		now:    time.Now,
	}, nil
}

// Record writes payload as one packet from src to dst. Write failures are
// kept and reported by Err; the first failure stops further writes.
func (t *Trace) Record(src, dst net.Addr, payload []byte) {
	if t == nil || len(payload) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil || t.writer == nil {
		return
	}

	flow := addrString(src) + ">" + addrString(dst)
	seq := t.seq[flow]
	t.seq[flow] = seq + uint32(len(payload))

	data, err := buildPacket(src, dst, seq, payload)
	if err != nil {
		t.err = err
		return
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     t.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if len(data) > snapLen {
		ci.CaptureLength = snapLen
		data = data[:snapLen]
	}
	if err := t.writer.WritePacket(ci, data); err != nil {
		t.err = fmt.Errorf("write packet: %w", err)
		return
	}
	t.packets++
}

// Packets returns the number of packets written.
func (t *Trace) Packets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.packets
}

// Err returns the first write failure, if any.
func (t *Trace) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close closes the underlying file (idempotent).
func (t *Trace) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.writer = nil
		if t.file != nil {
			err = t.file.Close()
			t.file = nil
		}
	})
	return err
}

func buildPacket(src, dst net.Addr, seq uint32, payload []byte) ([]byte, error) {
	srcIP, srcPort := endpoint(src)
	dstIP, dstPort := endpoint(dst)

	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq + 1,
		ACK:     true,
		PSH:     true,
		Window:  14600,
	}

	var network gopacket.SerializableLayer
	eth := &layers.Ethernet{
		SrcMAC: macFor(srcIP),
		DstMAC: macFor(dstIP),
	}
	if srcIP.To4() != nil && dstIP.To4() != nil {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			SrcIP:    srcIP.To4(),
			DstIP:    dstIP.To4(),
			Protocol: layers.IPProtocolTCP,
		}
		eth.EthernetType = layers.EthernetTypeIPv4
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, fmt.Errorf("tcp checksum layer: %w", err)
		}
		network = ip
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			SrcIP:      srcIP.To16(),
			DstIP:      dstIP.To16(),
			NextHeader: layers.IPProtocolTCP,
		}
		eth.EthernetType = layers.EthernetTypeIPv6
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, fmt.Errorf("tcp checksum layer: %w", err)
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, network, tcp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize packet: %w", err)
	}
	return buf.Bytes(), nil
}

// endpoint extracts an IP and port. Addresses that are not TCP (pipes in
// tests) map to the loopback address.
func endpoint(addr net.Addr) (net.IP, int) {
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp.IP != nil {
		return tcp.IP, tcp.Port
	}
	return net.IPv4(127, 0, 0, 1), 0
}

// macFor derives a locally administered MAC from the low bytes of ip.
func macFor(ip net.IP) net.HardwareAddr {
	b := ip.To16()
	return net.HardwareAddr{0x02, 0x00, b[12], b[13], b[14], b[15]}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
