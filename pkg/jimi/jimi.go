// Package jimi decodes and encodes the Jimi JM-LL301 (GT06 family) GPS
// tracker protocol.
//
// Create a decoder and decode packets:
//
//	decoder := jimi.NewDecoder()
//
//	data, _ := hex.DecodeString("7878052300070a690d0a")
//	pkt, err := decoder.Decode(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if hb, ok := pkt.(*packet.HeartbeatPacket); ok {
//	    fmt.Printf("heartbeat, serial %d\n", hb.SerialNumber())
//	}
//
// Stream reassembly of fragmented TCP reads lives in internal/framing; the
// decoder here takes one complete frame at a time.
package jimi

// ProtocolVersion is the supported device protocol profile.
const ProtocolVersion = "JM-LL301"
