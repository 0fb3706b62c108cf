package liveness

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// ProtocolVersion 检测器二进制协议版本
const ProtocolVersion = 0b0001

// MaxMessagePayload bounds any single length-prefixed field read from the detector.
const MaxMessagePayload = 16 << 20

// MessageType 消息类型
type MessageType uint8

const (
	// FrameRequest 携带动作标识与一帧图像的请求
	FrameRequest MessageType = 0b0001
	// JudgmentResponse 检测器返回的 JSON 判断结果
	JudgmentResponse MessageType = 0b1001
	// ErrorMessage 检测器错误消息
	ErrorMessage MessageType = 0b1111
)

// SerializationMethod 序列化方法
type SerializationMethod uint8

const (
	NoSerialization   SerializationMethod = 0b0000
	JSONSerialization SerializationMethod = 0b0001
)

// CompressionMethod 压缩方法
type CompressionMethod uint8

const (
	NoCompression   CompressionMethod = 0b0000
	GzipCompression CompressionMethod = 0b0001
)

// Header 4 字节消息头
type Header struct {
	ProtocolVersion     uint8               // 4 bits
	HeaderSize          uint8               // 4 bits, 以 4 字节为单位
	MessageType         MessageType         // 4 bits
	Flags               uint8               // 4 bits, 保留
	SerializationMethod SerializationMethod // 4 bits
	CompressionMethod   CompressionMethod   // 4 bits
	Reserved            uint8               // 8 bits
}

// Message 检测器协议消息
type Message struct {
	Header    Header
	Gesture   liveness.Gesture // 仅 FrameRequest
	ErrorCode uint32           // 仅 ErrorMessage
	Payload   []byte
}

// NewHeader 创建新的消息头
func NewHeader(msgType MessageType, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     ProtocolVersion,
		HeaderSize:          0b0001,
		MessageType:         msgType,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
	}
}

// Encode 编码消息头为4字节
func (h *Header) Encode() []byte {
	return []byte{
		(h.ProtocolVersion << 4) | (h.HeaderSize & 0x0F),
		(uint8(h.MessageType) << 4) | (h.Flags & 0x0F),
		(uint8(h.SerializationMethod) << 4) | uint8(h.CompressionMethod),
		h.Reserved,
	}
}

// DecodeHeader 从4字节解码消息头
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("header data too short: got %d, need 4", len(data))
	}

	header := &Header{
		ProtocolVersion:     (data[0] >> 4) & 0x0F,
		HeaderSize:          data[0] & 0x0F,
		MessageType:         MessageType((data[1] >> 4) & 0x0F),
		Flags:               data[1] & 0x0F,
		SerializationMethod: SerializationMethod((data[2] >> 4) & 0x0F),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
		Reserved:            data[3],
	}

	if header.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", header.ProtocolVersion)
	}
	if header.HeaderSize == 0 {
		return nil, fmt.Errorf("invalid header size: 0")
	}

	return header, nil
}

// EncodeMessage 编码完整消息
func EncodeMessage(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(msg.Header.Encode())

	switch msg.Header.MessageType {
	case FrameRequest:
		writeField(&buf, []byte(msg.Gesture))
	case ErrorMessage:
		writeUint32(&buf, msg.ErrorCode)
	case JudgmentResponse:
	default:
		return nil, fmt.Errorf("unsupported message type: %d", msg.Header.MessageType)
	}

	writeField(&buf, msg.Payload)
	return buf.Bytes(), nil
}

// DecodeMessage 从 reader 读取一条完整消息
func DecodeMessage(reader io.Reader) (*Message, error) {
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	// 跳过扩展头
	if extra := int(header.HeaderSize)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	msg := &Message{Header: *header}

	switch header.MessageType {
	case FrameRequest:
		gesture, err := readField(reader, "gesture")
		if err != nil {
			return nil, err
		}
		msg.Gesture = liveness.Gesture(gesture)
	case ErrorMessage:
		var code uint32
		if err := binary.Read(reader, binary.BigEndian, &code); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
		msg.ErrorCode = code
	case JudgmentResponse:
	default:
		return nil, fmt.Errorf("unsupported message type: %d", header.MessageType)
	}

	payload, err := readField(reader, "payload")
	if err != nil {
		return nil, err
	}
	msg.Payload = payload
	return msg, nil
}

// NewFrameRequest 创建帧请求，必要时压缩帧数据
func NewFrameRequest(frame []byte, gesture liveness.Gesture, compression CompressionMethod) (*Message, error) {
	payload, err := CompressPayload(frame, compression)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header:  NewHeader(FrameRequest, NoSerialization, compression),
		Gesture: gesture,
		Payload: payload,
	}, nil
}

// NewJudgmentResponse 创建检测器响应
func NewJudgmentResponse(j liveness.Judgment) (*Message, error) {
	payload, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshal judgment: %w", err)
	}
	return &Message{
		Header:  NewHeader(JudgmentResponse, JSONSerialization, NoCompression),
		Payload: payload,
	}, nil
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code uint32, text string) *Message {
	return &Message{
		Header:    NewHeader(ErrorMessage, NoSerialization, NoCompression),
		ErrorCode: code,
		Payload:   []byte(text),
	}
}

// Frame 返回解压后的帧数据
func (m *Message) Frame() ([]byte, error) {
	return DecompressPayload(m.Payload, m.Header.CompressionMethod)
}

// Judgment 解析检测器返回的判断结果
func (m *Message) Judgment() (liveness.Judgment, error) {
	if m.IsErrorMessage() {
		return liveness.Judgment{}, fmt.Errorf("detector error %d: %s", m.ErrorCode, string(m.Payload))
	}
	if m.Header.MessageType != JudgmentResponse {
		return liveness.Judgment{}, fmt.Errorf("unexpected message type: %d", m.Header.MessageType)
	}

	payload, err := DecompressPayload(m.Payload, m.Header.CompressionMethod)
	if err != nil {
		return liveness.Judgment{}, err
	}

	var j liveness.Judgment
	if err := json.Unmarshal(payload, &j); err != nil {
		return liveness.Judgment{}, fmt.Errorf("decode judgment: %w", err)
	}
	j.Confidence = liveness.Clamp(j.Confidence)
	return j, nil
}

// IsErrorMessage 判断是否为错误消息
func (m *Message) IsErrorMessage() bool {
	return m.Header.MessageType == ErrorMessage
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeField(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

func readField(reader io.Reader, name string) ([]byte, error) {
	var size uint32
	if err := binary.Read(reader, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("failed to read %s size: %w", name, err)
	}
	if size > MaxMessagePayload {
		return nil, fmt.Errorf("%s too large: %d bytes", name, size)
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("failed to read %s (expected %d bytes): %w", name, size, err)
	}
	return data, nil
}
