package reqbody

import "testing"

func TestDecide(t *testing.T) {
	cases := []struct {
		name                              string
		method, providerCT, clientCT, ep string
		want                              Shape
	}{
		{"get", "GET", "application/json", "application/json", "chat", ShapeNone},
		{"json", "POST", "application/json", "application/json", "chat", ShapeJSON},
		{"multipart", "POST", "multipart/form-data", "application/json", "chat", ShapeMultipart},
		{"proxy-audio", "POST", "application/json", "audio/mpeg", "proxy", ShapeRawAudio},
		{"stream-fallback", "POST", "application/json", "", "chat", ShapeStream},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Decide(c.method, c.providerCT, c.clientCT, c.ep)
			if got != c.want {
				t.Errorf("Decide() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestBuild_JSON(t *testing.T) {
	b, err := Build(ShapeJSON, map[string]any{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":1}` {
		t.Errorf("got %s", b)
	}
}

func TestBuild_None(t *testing.T) {
	b, err := Build(ShapeNone, map[string]any{"a": 1})
	if err != nil || b != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", b, err)
	}
}

func TestBuild_PassthroughBytes(t *testing.T) {
	raw := []byte("raw-bytes")
	b, err := Build(ShapeStream, raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "raw-bytes" {
		t.Errorf("got %s", b)
	}
}
