package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// decompress 解压压缩帧的 Payload，输出上限为 MaxFrameLen
func decompress(v Version, data []byte) ([]byte, error) {
	var r io.Reader
	switch v {
	case VersionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		defer zr.Close()
		r = zr
	case VersionBrotli:
		r = brotli.NewReader(bytes.NewReader(data))
	default:
		return nil, ErrUnsupportedVersion
	}

	out, err := io.ReadAll(io.LimitReader(r, MaxFrameLen+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v, err)
	}
	if len(out) > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	return out, nil
}

// Compress 按指定版本压缩数据
func Compress(v Version, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	switch v {
	case VersionZlib:
		w = zlib.NewWriter(&buf)
	case VersionBrotli:
		w = brotli.NewWriter(&buf)
	default:
		return nil, ErrUnsupportedVersion
	}

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCompressedFrame 将若干已编码的帧压缩打包为一个外层帧
func EncodeCompressedFrame(v Version, op Operation, seq uint32, frames ...[]byte) ([]byte, error) {
	if !v.Compressed() {
		return nil, ErrUnsupportedVersion
	}

	compressed, err := Compress(v, bytes.Join(frames, nil))
	if err != nil {
		return nil, err
	}
	return encode(v, op, seq, compressed), nil
}
