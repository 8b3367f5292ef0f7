// rules.go - Abbildung der Modul-Parameter auf T5-Checkpoint-Namen
//
// Die Tags folgen der HuggingFace-Export-Konvention: Attention- und
// FFN-Gewichte liegen dort im [out, in]-Layout und werden beim Laden
// transponiert. Die geteilte Embedding-Tabelle heisst je nach Export
// "shared.weight" oder "encoder.embed_tokens.weight". LayerNorms im
// Checkpoint haben nur einen Skalierungs-Vektor; die Beta-Parameter
// behalten ihre Null-Initialisierung.
package t5

import (
	"context"
	"fmt"

	"github.com/asyml/texar-go/pretrained"
)

// CheckpointRules gibt die Lade-Regeln fuer HuggingFace-T5-Checkpoints
// passend zur Block-Anzahl dieser Instanz zurueck.
func (m *EncoderDecoder) CheckpointRules() []pretrained.Rule {
	rules := []pretrained.Rule{{
		Param: m.Embedder.Name() + ".weight",
		Tag:   "shared.weight,alt:encoder.embed_tokens.weight,alt:decoder.embed_tokens.weight",
	}}

	for i := range m.Encoder.Blocks {
		prefix := fmt.Sprintf("%s.layer_%d", m.Encoder.Name(), i)
		ckpt := fmt.Sprintf("encoder.block.%d", i)

		rules = append(rules,
			attentionRules(prefix+".self", ckpt+".layer.0.SelfAttention")...)
		rules = append(rules,
			pretrained.Rule{Param: prefix + ".self_attention_layer_norm.gamma", Tag: ckpt + ".layer.0.layer_norm.weight"},
			pretrained.Rule{Param: prefix + ".poswise_feedforward.wi.weight", Tag: ckpt + ".layer.1.DenseReluDense.wi.weight,transpose"},
			pretrained.Rule{Param: prefix + ".poswise_feedforward.wo.weight", Tag: ckpt + ".layer.1.DenseReluDense.wo.weight,transpose"},
			pretrained.Rule{Param: prefix + ".ffn_layer_norm.gamma", Tag: ckpt + ".layer.1.layer_norm.weight"},
		)
	}
	rules = append(rules, pretrained.Rule{
		Param: m.Encoder.Name() + ".final_layer_norm.gamma",
		Tag:   "encoder.final_layer_norm.weight",
	})

	for i := range m.Decoder.Blocks {
		prefix := fmt.Sprintf("%s.layer_%d", m.Decoder.Name(), i)
		ckpt := fmt.Sprintf("decoder.block.%d", i)

		rules = append(rules,
			attentionRules(prefix+".self", ckpt+".layer.0.SelfAttention")...)
		rules = append(rules,
			pretrained.Rule{Param: prefix + ".self_attention_layer_norm.gamma", Tag: ckpt + ".layer.0.layer_norm.weight"})
		rules = append(rules,
			attentionRules(prefix+".encdec", ckpt+".layer.1.EncDecAttention")...)
		rules = append(rules,
			pretrained.Rule{Param: prefix + ".cross_attention_layer_norm.gamma", Tag: ckpt + ".layer.1.layer_norm.weight"},
			pretrained.Rule{Param: prefix + ".poswise_feedforward.wi.weight", Tag: ckpt + ".layer.2.DenseReluDense.wi.weight,transpose"},
			pretrained.Rule{Param: prefix + ".poswise_feedforward.wo.weight", Tag: ckpt + ".layer.2.DenseReluDense.wo.weight,transpose"},
			pretrained.Rule{Param: prefix + ".ffn_layer_norm.gamma", Tag: ckpt + ".layer.2.layer_norm.weight"},
		)
	}
	rules = append(rules, pretrained.Rule{
		Param: m.Decoder.Name() + ".final_layer_norm.gamma",
		Tag:   "decoder.final_layer_norm.weight",
	})

	return rules
}

// attentionRules bildet die vier Projektionen eines Attention-Moduls ab
func attentionRules(param, ckpt string) []pretrained.Rule {
	return []pretrained.Rule{
		{Param: param + ".query.weight", Tag: ckpt + ".q.weight,transpose"},
		{Param: param + ".key.weight", Tag: ckpt + ".k.weight,transpose"},
		{Param: param + ".value.weight", Tag: ckpt + ".v.weight,transpose"},
		{Param: param + ".output.weight", Tag: ckpt + ".o.weight,transpose"},
	}
}

// LoadPretrained laedt den Checkpoint des konfigurierten Presets und
// wendet ihn auf diese Instanz an.
func (m *EncoderDecoder) LoadPretrained(ctx context.Context) (*pretrained.LoadResult, error) {
	name := m.HParams().String("pretrained_model_name", "")
	if name == "" {
		return nil, &pretrained.UnknownPretrainedModelError{Name: ""}
	}
	return pretrained.Load(ctx, name, m, m.CheckpointRules())
}
