package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

func collect(t *testing.T, data []byte) ([]*Frame, []error) {
	t.Helper()
	var frames []*Frame
	var errs []error
	for f, err := range Decode(data) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, errs
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		op      Operation
		seq     uint32
		payload []byte
	}{
		{"heartbeat with empty payload", OpHeartbeat, 1, nil},
		{"auth with json payload", OpAuth, 2, []byte(`{"roomid":12345,"key":"abc"}`)},
		{"message with max sequence", OpMessage, 0xFFFFFFFF, []byte(`{"cmd":"DANMU_MSG"}`)},
		{"auth ack", OpAuthAck, 0, []byte(`{"code":0}`)},
		{"large payload", OpMessage, 7, bytes.Repeat([]byte{0xAB}, 64*1024)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeFrame(tc.op, tc.seq, tc.payload)

			if got := binary.BigEndian.Uint32(encoded[0:4]); int(got) != HeaderSize+len(tc.payload) {
				t.Fatalf("total length = %d, want %d", got, HeaderSize+len(tc.payload))
			}
			if got := binary.BigEndian.Uint16(encoded[4:6]); got != HeaderSize {
				t.Fatalf("header length = %d, want %d", got, HeaderSize)
			}

			frames, errs := collect(t, encoded)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}

			f := frames[0]
			if f.Version != VersionPlain {
				t.Errorf("version = %s, want plain", f.Version)
			}
			if f.Operation != tc.op {
				t.Errorf("operation = %s, want %s", f.Operation, tc.op)
			}
			if f.Sequence != tc.seq {
				t.Errorf("sequence = %d, want %d", f.Sequence, tc.seq)
			}
			if !bytes.Equal(f.Payload, tc.payload) {
				t.Errorf("payload mismatch")
			}
			if f.TotalLength() != len(encoded) {
				t.Errorf("TotalLength() = %d, want %d", f.TotalLength(), len(encoded))
			}
		})
	}
}

func chatFrames(n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = EncodeFrame(OpMessage, 0, []byte(fmt.Sprintf(`{"cmd":"DANMU_MSG","info":[%d]}`, i)))
	}
	return frames
}

func TestDecodeCompressedBatch(t *testing.T) {
	for _, v := range []Version{VersionZlib, VersionBrotli} {
		for _, n := range []int{0, 1, 5} {
			t.Run(fmt.Sprintf("%s/%d", v, n), func(t *testing.T) {
				inner := chatFrames(n)
				outer, err := EncodeCompressedFrame(v, OpMessage, 0, inner...)
				if err != nil {
					t.Fatalf("encode: %v", err)
				}

				frames, errs := collect(t, outer)
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				if len(frames) != n {
					t.Fatalf("got %d frames, want %d", len(frames), n)
				}
				for i, f := range frames {
					want := fmt.Sprintf(`{"cmd":"DANMU_MSG","info":[%d]}`, i)
					if string(f.Payload) != want {
						t.Errorf("frame %d payload = %s, want %s", i, f.Payload, want)
					}
					if f.Version != VersionPlain {
						t.Errorf("frame %d version = %s, want plain", i, f.Version)
					}
				}
			})
		}
	}
}

func TestDecodeCorruptInnerFrame(t *testing.T) {
	inner := chatFrames(3)
	// 第二个帧改成不支持的版本，长度字段保持不变
	binary.BigEndian.PutUint16(inner[1][6:8], 9)

	outer, err := EncodeCompressedFrame(VersionZlib, OpMessage, 0, inner...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var payloads []string
	var decodeErrs []*FrameDecodeError
	for f, err := range Decode(outer) {
		if err != nil {
			var de *FrameDecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error is not a FrameDecodeError: %v", err)
			}
			decodeErrs = append(decodeErrs, de)
			continue
		}
		payloads = append(payloads, string(f.Payload))
	}

	if len(decodeErrs) != 1 {
		t.Fatalf("got %d decode errors, want 1", len(decodeErrs))
	}
	if !errors.Is(decodeErrs[0], ErrUnsupportedVersion) {
		t.Errorf("error = %v, want ErrUnsupportedVersion", decodeErrs[0])
	}
	if decodeErrs[0].Operation != OpMessage {
		t.Errorf("error operation = %s, want message", decodeErrs[0].Operation)
	}

	want := []string{`{"cmd":"DANMU_MSG","info":[0]}`, `{"cmd":"DANMU_MSG","info":[2]}`}
	if len(payloads) != len(want) {
		t.Fatalf("got %d frames, want %d", len(payloads), len(want))
	}
	for i := range want {
		if payloads[i] != want[i] {
			t.Errorf("frame %d = %s, want %s", i, payloads[i], want[i])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	badLength := EncodeFrame(OpMessage, 1, []byte("x"))
	binary.BigEndian.PutUint32(badLength[0:4], 8)

	badHeader := EncodeFrame(OpMessage, 1, []byte("x"))
	binary.BigEndian.PutUint16(badHeader[4:6], 20)

	badZlib := encode(VersionZlib, OpMessage, 1, []byte("not zlib"))

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"total length below header", badLength, ErrInvalidLength},
		{"header length not 16", badHeader, ErrHeaderLength},
		{"decompression failure", badZlib, nil},
		{"truncated header", []byte{0, 0, 0}, ErrFrameTooShort},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frames, errs := collect(t, tc.data)
			if len(frames) != 0 {
				t.Fatalf("got %d frames, want 0", len(frames))
			}
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1", len(errs))
			}
			var de *FrameDecodeError
			if !errors.As(errs[0], &de) {
				t.Fatalf("error is not a FrameDecodeError: %v", errs[0])
			}
			if tc.want != nil && !errors.Is(errs[0], tc.want) {
				t.Errorf("error = %v, want %v", errs[0], tc.want)
			}
		})
	}
}

func TestDecodeSkipsBadHeaderAndContinues(t *testing.T) {
	first := EncodeFrame(OpMessage, 1, []byte("a"))
	binary.BigEndian.PutUint16(first[4:6], 18)
	second := EncodeFrame(OpMessage, 2, []byte("b"))

	frames, errs := collect(t, append(first, second...))
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if len(frames) != 1 || frames[0].Sequence != 2 {
		t.Fatalf("expected only the second frame to decode, got %+v", frames)
	}
}

func TestDecodeStopsWhenConsumerStops(t *testing.T) {
	outer, err := EncodeCompressedFrame(VersionBrotli, OpMessage, 0, chatFrames(5)...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	count := 0
	for range Decode(outer) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestFrameBuffer(t *testing.T) {
	a := EncodeFrame(OpMessage, 1, []byte(`{"cmd":"A"}`))
	b := EncodeFrame(OpHeartbeatAck, 2, []byte{0, 0, 0, 9})
	stream := append(append([]byte{}, a...), b...)

	var buf FrameBuffer
	var got [][]byte

	// 每次写入 5 个字节，模拟非对齐读取
	for i := 0; i < len(stream); i += 5 {
		end := min(i+5, len(stream))
		buf.Write(stream[i:end])
		for {
			raw, err := buf.Next()
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if raw == nil {
				break
			}
			got = append(got, append([]byte(nil), raw...))
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("frames do not match input")
	}
	if buf.Len() != 0 {
		t.Errorf("buffer has %d leftover bytes", buf.Len())
	}
}

func TestFrameBufferDropsInvalidLength(t *testing.T) {
	bad := EncodeFrame(OpMessage, 1, nil)
	binary.BigEndian.PutUint32(bad[0:4], 3)

	var buf FrameBuffer
	buf.Write(bad)

	raw, err := buf.Next()
	if raw != nil {
		t.Fatalf("expected no frame")
	}
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("err = %v, want ErrInvalidLength", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not reset")
	}

	good := EncodeFrame(OpMessage, 2, []byte("ok"))
	buf.Write(good)
	raw, err = buf.Next()
	if err != nil || !bytes.Equal(raw, good) {
		t.Fatalf("buffer unusable after reset: raw=%v err=%v", raw, err)
	}
}
