package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"balance-rpc/codec"
	"balance-rpc/message"
	"balance-rpc/protocol"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func TestServer(t *testing.T) {
	// Start a server
	svr := NewServer()

	err := svr.Register(&Arith{})
	if err != nil {
		t.Fatalf("Failed to register service: %v", err)
	}

	go svr.Serve("tcp", ":8888", "", nil)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", ":8888")
	if err != nil {
		t.Fatal(err)
	}

	payload, err := json.Marshal(&Args{1, 2})
	if err != nil {
		t.Fatal(err)
	}

	rpcMessage := message.RPCMessage{
		ServiceMethod: "Arith.Add",
		Error:         "",
		Payload:       payload,
	}

	cdc := codec.GetCodec(codec.CodecType(protocol.CodecTypeJSON))

	body, err := cdc.Encode(&rpcMessage)
	if err != nil {
		t.Fatal(err)
	}

	header := protocol.Header{
		CodecType: protocol.CodecTypeJSON,
		MsgType:   protocol.MsgTypeRequest,
		Seq:       uint32(123),
		BodyLen:   uint32(len(body)),
	}

	if err := protocol.Encode(conn, &header, body); err != nil {
		t.Fatal(err)
	}

	replyHeader, responseBody, err := protocol.Decode(conn)
	if err != nil {
		t.Fatal(err)
	}

	if replyHeader.Seq != header.Seq {
		t.Fatalf("Expect replyHeader with seq: %v, get %v", header.Seq, replyHeader.Seq)
	}

	if replyHeader.CodecType != header.CodecType {
		t.Fatalf("Expect replyHeader with CodecType: %v, get %v", header.CodecType, replyHeader.CodecType)
	}

	if replyHeader.MsgType != protocol.MsgTypeResponse {
		t.Fatalf("Expect replyHeader with MsgType: %v, get %v", protocol.MsgTypeResponse, replyHeader.MsgType)
	}

	responseRPC := message.RPCMessage{}
	if err := cdc.Decode(responseBody, &responseRPC); err != nil {
		t.Fatal(err)
	}

	var reply Reply
	if err := json.Unmarshal(responseRPC.Payload, &reply); err != nil {
		t.Fatal(err)
	}

	if reply.Result != 3 {
		t.Fatalf("Expect get result = 3, get %v", reply.Result)
	}
}

func TestServerUnknownService(t *testing.T) {
	svr := NewServer()
	if err := svr.Register(&Arith{}); err != nil {
		t.Fatal(err)
	}
	go svr.Serve("tcp", ":8887", "", nil)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", ":8887")
	if err != nil {
		t.Fatal(err)
	}

	rpcMessage := message.RPCMessage{
		ServiceMethod: "Nope.Add",
		Payload:       []byte(`{}`),
	}
	cdc := codec.GetCodec(codec.CodecTypeJSON)
	body, err := cdc.Encode(&rpcMessage)
	if err != nil {
		t.Fatal(err)
	}
	header := protocol.Header{
		CodecType: protocol.CodecTypeJSON,
		MsgType:   protocol.MsgTypeRequest,
		Seq:       1,
		BodyLen:   uint32(len(body)),
	}
	if err := protocol.Encode(conn, &header, body); err != nil {
		t.Fatal(err)
	}

	_, responseBody, err := protocol.Decode(conn)
	if err != nil {
		t.Fatal(err)
	}
	responseRPC := message.RPCMessage{}
	if err := cdc.Decode(responseBody, &responseRPC); err != nil {
		t.Fatal(err)
	}
	if responseRPC.Error == "" {
		t.Fatal("expect an error for an unknown service")
	}
}
