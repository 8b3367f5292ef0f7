// safetensors.go - Reader fuer das Safetensors-Format
//
// Aufbau der Datei: 8 Byte Header-Laenge (Little-Endian), JSON-Header
// mit Dtype/Shape/Offsets pro Tensor, danach die rohen Tensor-Daten.
// F16 und BF16 werden beim Lesen nach Float32 entpackt.
package pretrained

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// safetensorsMetadataKey ist der reservierte Header-Eintrag ohne Tensor
const safetensorsMetadataKey = "__metadata__"

type safetensorsInfo struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

func openSafetensors(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint lesen fehlgeschlagen: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("pretrained: safetensors header truncated")
	}

	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("pretrained: safetensors header size %d exceeds file", headerSize)
	}
	headerBytes := data[8 : 8+headerSize]
	tensorData := data[8+headerSize:]

	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("safetensors header parsen fehlgeschlagen: %w", err)
	}

	tensors := make(tensorMap, len(header))
	for name, raw := range header {
		if name == safetensorsMetadataKey {
			continue
		}
		var info safetensorsInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("safetensors eintrag %q parsen fehlgeschlagen: %w", name, err)
		}
		t, err := unpackSafetensor(name, &info, tensorData)
		if err != nil {
			return nil, err
		}
		tensors[name] = t
	}
	return tensors, nil
}

func unpackSafetensor(name string, info *safetensorsInfo, tensorData []byte) (*Tensor, error) {
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end < start || end > len(tensorData) {
		return nil, fmt.Errorf("pretrained: tensor %q has invalid data offsets", name)
	}
	raw := tensorData[start:end]

	numElements := 1
	for _, dim := range info.Shape {
		numElements *= dim
	}

	out := make([]float32, numElements)
	switch info.Dtype {
	case "F32":
		if len(raw) != numElements*4 {
			return nil, fmt.Errorf("pretrained: tensor %q data size mismatch", name)
		}
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case "F16":
		if len(raw) != numElements*2 {
			return nil, fmt.Errorf("pretrained: tensor %q data size mismatch", name)
		}
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case "BF16":
		if len(raw) != numElements*2 {
			return nil, fmt.Errorf("pretrained: tensor %q data size mismatch", name)
		}
		for i := range out {
			out[i] = bfloat16.ToFloat32(bfloat16.BF16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	default:
		return nil, fmt.Errorf("pretrained: tensor %q has unsupported dtype %s", name, info.Dtype)
	}

	shape := make([]int, len(info.Shape))
	copy(shape, info.Shape)
	return &Tensor{Shape: shape, Data: out}, nil
}
