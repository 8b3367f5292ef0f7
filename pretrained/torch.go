// torch.go - Reader fuer PyTorch-Checkpoints (Pickle-Format)
//
// Liest mit torch.save geschriebene state_dicts ueber gopickle ein.
// Half- und BFloat16-Storages kommen von gopickle bereits als Float32,
// Double wird beim Kopieren heruntergerechnet.
package pretrained

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

func openTorch(path string) (Checkpoint, error) {
	result, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("pytorch checkpoint lesen fehlgeschlagen: %w", err)
	}

	tensors := make(tensorMap)
	if err := collectTorchEntries(result, tensors); err != nil {
		return nil, err
	}
	if len(tensors) == 0 {
		return nil, fmt.Errorf("pretrained: checkpoint contains no tensors")
	}
	return tensors, nil
}

func collectTorchEntries(result any, tensors tensorMap) error {
	switch dict := result.(type) {
	case *types.OrderedDict:
		for _, entry := range dict.Map {
			if err := addTorchEntry(entry.Key, entry.Value, tensors); err != nil {
				return err
			}
		}
	case *types.Dict:
		for _, entry := range *dict {
			if err := addTorchEntry(entry.Key, entry.Value, tensors); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("pretrained: unexpected checkpoint root type %T", result)
	}
	return nil
}

func addTorchEntry(key, value any, tensors tensorMap) error {
	name, ok := key.(string)
	if !ok {
		return fmt.Errorf("pretrained: non-string tensor name %v", key)
	}

	// Metadaten-Eintraege wie _metadata ueberspringen
	t, ok := value.(*pytorch.Tensor)
	if !ok {
		return nil
	}

	converted, err := convertTorchTensor(name, t)
	if err != nil {
		return err
	}
	tensors[name] = converted
	return nil
}

func convertTorchTensor(name string, t *pytorch.Tensor) (*Tensor, error) {
	numElements := 1
	for _, dim := range t.Size {
		numElements *= dim
	}

	data := make([]float32, numElements)
	offset := t.StorageOffset
	switch storage := t.Source.(type) {
	case *pytorch.FloatStorage:
		if offset+numElements > len(storage.Data) {
			return nil, fmt.Errorf("pretrained: tensor %q exceeds storage", name)
		}
		copy(data, storage.Data[offset:offset+numElements])
	case *pytorch.HalfStorage:
		if offset+numElements > len(storage.Data) {
			return nil, fmt.Errorf("pretrained: tensor %q exceeds storage", name)
		}
		copy(data, storage.Data[offset:offset+numElements])
	case *pytorch.BFloat16Storage:
		if offset+numElements > len(storage.Data) {
			return nil, fmt.Errorf("pretrained: tensor %q exceeds storage", name)
		}
		copy(data, storage.Data[offset:offset+numElements])
	case *pytorch.DoubleStorage:
		if offset+numElements > len(storage.Data) {
			return nil, fmt.Errorf("pretrained: tensor %q exceeds storage", name)
		}
		for i := range data {
			data[i] = float32(storage.Data[offset+i])
		}
	default:
		return nil, fmt.Errorf("pretrained: tensor %q has unsupported storage %T", name, t.Source)
	}

	shape := make([]int, len(t.Size))
	copy(shape, t.Size)
	return &Tensor{Shape: shape, Data: data}, nil
}
