package protocol

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

var clientMessages = []struct {
	name string
	typ  reflect.Type
}{
	{MsgInit, reflect.TypeOf(Init{})},
	{MsgLeave, reflect.TypeOf(Leave{})},
	{MsgCursor, reflect.TypeOf(Cursor{})},
	{MsgCanvasUpdate, reflect.TypeOf(CanvasUpdate{})},
	{MsgCodeUpdate, reflect.TypeOf(CodeUpdate{})},
	{MsgRun, reflect.TypeOf(Run{})},
	{MsgProgress, reflect.TypeOf(Progress{})},
}

// ClientSchema describes every frame a client may send.
func ClientSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	variants := make([]*jsonschema.Schema, 0, len(clientMessages))
	for _, m := range clientMessages {
		s := reflector.ReflectFromType(m.typ)
		if s == nil {
			continue
		}
		s.Version = ""
		s.Title = m.name
		if s.Properties != nil {
			s.Properties.Set("type", &jsonschema.Schema{Type: "string", Enum: []interface{}{m.name}})
		}
		s.Required = append([]string{"type"}, s.Required...)
		variants = append(variants, s)
	}

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Arena client message",
		Description: "Frames accepted on an arena socket, discriminated by type.",
		OneOf:       variants,
	}
}
