package mp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/billm/baaaht/mpchan/pkg/types"
)

// kind tags an envelope on the wire
type kind int32

const (
	kindPlain kind = iota
	kindRequest
	kindReply
	kindIgnore
)

// String returns the string representation of the kind
func (k kind) String() string {
	switch k {
	case kindPlain:
		return "plain"
	case kindRequest:
		return "request"
	case kindReply:
		return "reply"
	case kindIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

func (k kind) valid() bool {
	return k >= kindPlain && k <= kindIgnore
}

// Record layout, all integers in host byte order:
//
//	kind      int32
//	name      [MaxNameLen]byte, NUL padded
//	paramLen  int32
//	param     [MaxParamLen]byte
//	fdCount   int32
//
// Descriptors travel as SCM_RIGHTS control data on the same datagram.
const (
	offName     = 4
	offParamLen = offName + MaxNameLen
	offParam    = offParamLen + 4
	offFDCount  = offParam + MaxParamLen
	recordSize  = offFDCount + 4
)

// oobSize fits the control message for MaxFDs descriptors
var oobSize = unix.CmsgSpace(MaxFDs * 4)

// envelope is one decoded datagram
type envelope struct {
	kind kind
	msg  *Message
}

// encodeRecord frames msg. The returned oob carries msg.Files, which must stay
// open until the datagram is sent.
func encodeRecord(k kind, msg *Message) (record, oob []byte, err error) {
	if !k.valid() {
		return nil, nil, types.NewError(types.ErrCodeInvalid, "unknown message kind "+k.String())
	}
	if err := msg.validate(); err != nil {
		return nil, nil, err
	}

	record = make([]byte, recordSize)
	binary.NativeEndian.PutUint32(record, uint32(k))
	copy(record[offName:offParamLen], msg.Name)
	binary.NativeEndian.PutUint32(record[offParamLen:], uint32(len(msg.Param)))
	copy(record[offParam:offFDCount], msg.Param)
	binary.NativeEndian.PutUint32(record[offFDCount:], uint32(len(msg.Files)))

	if len(msg.Files) > 0 {
		fds := make([]int, len(msg.Files))
		for i, f := range msg.Files {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}
	return record, oob, nil
}

// decodeRecord parses one received datagram. Descriptors found in oob are
// owned by the returned message, or closed when decoding fails.
func decodeRecord(record, oob []byte, flags int) (envelope, error) {
	files, err := parseRights(oob)
	if err != nil {
		return envelope{}, err
	}

	env, err := decodeBody(record, flags, len(files))
	if err != nil {
		closeFiles(files)
		return envelope{}, err
	}
	env.msg.Files = files
	return env, nil
}

func decodeBody(record []byte, flags, nfiles int) (envelope, error) {
	if flags&unix.MSG_TRUNC != 0 {
		return envelope{}, types.NewError(types.ErrCodeProtocol, "datagram truncated")
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return envelope{}, types.NewError(types.ErrCodeProtocol, "control data truncated")
	}
	if len(record) != recordSize {
		return envelope{}, types.NewError(types.ErrCodeProtocol,
			fmt.Sprintf("record size %d, expected %d", len(record), recordSize))
	}

	k := kind(int32(binary.NativeEndian.Uint32(record)))
	if !k.valid() {
		return envelope{}, types.NewError(types.ErrCodeProtocol, "unknown message kind "+k.String())
	}

	nameBuf := record[offName:offParamLen]
	end := bytes.IndexByte(nameBuf, 0)
	if end < 0 {
		return envelope{}, types.NewError(types.ErrCodeProtocol, "action name not terminated")
	}
	if end == 0 {
		return envelope{}, types.NewError(types.ErrCodeProtocol, "empty action name")
	}

	paramLen := int32(binary.NativeEndian.Uint32(record[offParamLen:]))
	if paramLen < 0 || paramLen > MaxParamLen {
		return envelope{}, types.NewError(types.ErrCodeProtocol, fmt.Sprintf("invalid param length %d", paramLen))
	}

	fdCount := int32(binary.NativeEndian.Uint32(record[offFDCount:]))
	if fdCount < 0 || fdCount > MaxFDs {
		return envelope{}, types.NewError(types.ErrCodeProtocol, fmt.Sprintf("invalid descriptor count %d", fdCount))
	}
	if int(fdCount) != nfiles {
		return envelope{}, types.NewError(types.ErrCodeProtocol,
			fmt.Sprintf("record announces %d descriptors, received %d", fdCount, nfiles))
	}

	msg := &Message{Name: string(nameBuf[:end])}
	if paramLen > 0 {
		msg.Param = bytes.Clone(record[offParam : offParam+int(paramLen)])
	}
	return envelope{kind: k, msg: msg}, nil
}

// parseRights extracts the descriptors of every SCM_RIGHTS message in oob
func parseRights(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeProtocol, "malformed control data", err)
	}

	var files []*os.File
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			closeFiles(files)
			return nil, types.WrapError(types.ErrCodeProtocol, "malformed descriptor data", err)
		}
		for _, fd := range fds {
			files = append(files, os.NewFile(uintptr(fd), fmt.Sprintf("mp-fd-%d", fd)))
		}
	}
	return files, nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
