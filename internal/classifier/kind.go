package classifier

import "fmt"

// Kind identifies one of the three fixed topologies.
type Kind int

const (
	KindCNN Kind = iota
	KindMLP
	KindLR
)

// Kinds lists every topology in registry order.
var Kinds = []Kind{KindCNN, KindMLP, KindLR}

// String returns the display name used in responses.
func (k Kind) String() string {
	switch k {
	case KindCNN:
		return "CNN"
	case KindMLP:
		return "MLP"
	case KindLR:
		return "LR"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// prefix is the state-dict prefix of the topology's parameters.
func (k Kind) prefix() string {
	switch k {
	case KindCNN:
		return "cnn_model"
	case KindMLP:
		return "mlp_model"
	case KindLR:
		return "lr_model"
	default:
		return ""
	}
}
