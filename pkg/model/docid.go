package model

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DocIDRawLen is the encoded size of a DocID in bytes.
	DocIDRawLen = 12
	// DocIDHexLen is the length of the canonical hexadecimal form.
	DocIDHexLen = 24

	counterMask = 0xFFFFFF
)

// DocID is a 12-byte document identifier. The layout packs a creation
// timestamp, a machine value, a process id and a per-process counter so that
// ids minted concurrently on independent machines do not collide and ids
// minted in different seconds sort in wall-clock order.
//
// Big-endian byte layout:
//
//	bytes 0-3   timestamp, seconds since the Unix epoch (signed 32-bit)
//	bytes 4-6   machine value (24-bit)
//	bytes 7-8   process id (signed 16-bit)
//	bytes 9-11  counter (24-bit)
//
// DocID is an immutable value type and is comparable with ==.
type DocID struct {
	timestamp int32
	machine   uint32
	pid       int16
	counter   uint32
}

// NewDocID builds an id from explicit components. The machine and counter
// values are truncated to 24 bits.
func NewDocID(timestamp time.Time, machine uint32, pid int16, counter uint32) DocID {
	return DocID{
		timestamp: int32(timestamp.Unix()),
		machine:   machine & counterMask,
		pid:       pid,
		counter:   counter & counterMask,
	}
}

// ParseDocID decodes the canonical 24-character hexadecimal form. Both hex
// cases are accepted; anything whose length or alphabet is off fails with
// ErrMalformedID.
func ParseDocID(s string) (DocID, error) {
	if len(s) != DocIDHexLen {
		return DocID{}, fmt.Errorf("%w: expected %d hex characters, got %d", ErrMalformedID, DocIDHexLen, len(s))
	}
	var b [DocIDRawLen]byte
	if _, err := hex.Decode(b[:], []byte(s)); err != nil {
		return DocID{}, fmt.Errorf("%w: %q is not hexadecimal", ErrMalformedID, s)
	}
	return docIDFromBytes(b), nil
}

// TryParseDocID is the lenient form of ParseDocID used for user-typed input.
// A "0x" or "0X" prefix is stripped and an odd-length string is left-padded
// with a single zero before decoding. Failure is reported as ok=false, never
// as an error.
func TryParseDocID(s string) (DocID, bool) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	id, err := ParseDocID(s)
	return id, err == nil
}

// DocIDFromBytes decodes the 12-byte binary form.
func DocIDFromBytes(b []byte) (DocID, error) {
	if len(b) != DocIDRawLen {
		return DocID{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedID, DocIDRawLen, len(b))
	}
	var raw [DocIDRawLen]byte
	copy(raw[:], b)
	return docIDFromBytes(raw), nil
}

func docIDFromBytes(b [DocIDRawLen]byte) DocID {
	return DocID{
		timestamp: int32(binary.BigEndian.Uint32(b[0:4])),
		machine:   uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6]),
		pid:       int16(binary.BigEndian.Uint16(b[7:9])),
		counter:   uint32(b[9])<<16 | uint32(b[10])<<8 | uint32(b[11]),
	}
}

// Bytes returns the 12-byte binary form.
func (id DocID) Bytes() [DocIDRawLen]byte {
	var b [DocIDRawLen]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(id.timestamp))
	b[4] = byte(id.machine >> 16)
	b[5] = byte(id.machine >> 8)
	b[6] = byte(id.machine)
	binary.BigEndian.PutUint16(b[7:9], uint16(id.pid))
	b[9] = byte(id.counter >> 16)
	b[10] = byte(id.counter >> 8)
	b[11] = byte(id.counter)
	return b
}

// Hex returns the canonical lowercase 24-character hexadecimal form.
func (id DocID) Hex() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

// String returns the canonical hexadecimal form.
func (id DocID) String() string { return id.Hex() }

// Timestamp returns the creation time recorded in the id, at second precision.
func (id DocID) Timestamp() time.Time {
	return time.Unix(int64(id.timestamp), 0).UTC()
}

// Machine returns the 24-bit machine value.
func (id DocID) Machine() uint32 { return id.machine }

// PID returns the process id component.
func (id DocID) PID() int16 { return id.pid }

// Counter returns the 24-bit counter component.
func (id DocID) Counter() uint32 { return id.counter }

// IsZero reports whether the id is the all-zero value.
func (id DocID) IsZero() bool {
	return id == DocID{}
}

// Equal reports whether two ids are identical.
func (id DocID) Equal(other DocID) bool {
	return id == other
}

// Compare orders ids by timestamp, then machine, then pid, then counter.
// The pid component compares as a signed 16-bit value. Returns -1, 0 or 1.
func (id DocID) Compare(other DocID) int {
	if id.timestamp != other.timestamp {
		if id.timestamp < other.timestamp {
			return -1
		}
		return 1
	}
	if id.machine != other.machine {
		if id.machine < other.machine {
			return -1
		}
		return 1
	}
	if id.pid != other.pid {
		if id.pid < other.pid {
			return -1
		}
		return 1
	}
	if id.counter != other.counter {
		if id.counter < other.counter {
			return -1
		}
		return 1
	}
	return 0
}

// MarshalBSONValue encodes the id as a 12-byte generic binary value.
func (id DocID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	b := id.Bytes()
	return bson.MarshalValue(primitive.Binary{Subtype: 0x00, Data: b[:]})
}

// UnmarshalBSONValue decodes a 12-byte generic binary value.
func (id *DocID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var bin primitive.Binary
	if err := bson.UnmarshalValue(t, data, &bin); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedID, err)
	}
	parsed, err := DocIDFromBytes(bin.Data)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

var (
	machineOnce  sync.Once
	machineValue uint32
)

// processMachineID derives the 24-bit machine value once per process: a hash
// of the hostname plus a random per-process salt, so two processes on the
// same host still mint distinct ids.
func processMachineID() uint32 {
	machineOnce.Do(func() {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		sum := blake3.Sum256([]byte(host))
		hash := uint32(sum[0])<<16 | uint32(sum[1])<<8 | uint32(sum[2])
		machineValue = (hash + randUint24()) & counterMask
	})
	return machineValue
}

func randUint24() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		binary.BigEndian.PutUint32(b[:], uint32(time.Now().UnixNano()))
	}
	return binary.BigEndian.Uint32(b[:]) & counterMask
}

// IDGenerator mints document ids. All generators in a process share one
// machine value; each generator keeps its own counter. Safe for concurrent
// use. The zero value is not usable, construct with NewIDGenerator.
type IDGenerator struct {
	machine uint32
	pid     int16
	counter atomic.Uint32
	now     func() time.Time
}

// NewIDGenerator returns a generator seeded with the process machine value,
// the current process id and a random counter start.
func NewIDGenerator() *IDGenerator {
	g := &IDGenerator{
		machine: processMachineID(),
		pid:     int16(os.Getpid()),
		now:     time.Now,
	}
	g.counter.Store(randUint24())
	return g
}

// New mints a fresh id. Generation never fails.
func (g *IDGenerator) New() DocID {
	return DocID{
		timestamp: int32(g.now().Unix()),
		machine:   g.machine,
		pid:       g.pid,
		counter:   g.counter.Add(1) & counterMask,
	}
}
