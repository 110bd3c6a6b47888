package adminpb

import "encoding/json"

// Codec is a grpc encoding.Codec that marshals the plain structs in this
// package as JSON instead of protobuf wire format. Register it once with
// encoding.RegisterCodec, or pass grpc.ForceCodec(Codec{}) to the server
// and every client call — this package's messages do not implement
// proto.Message, so the default codec would reject them.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return "csync-admin-json"
}
