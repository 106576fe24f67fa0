// Package classifier defines the three digit-classifier topologies and the [Registry] that loads them.
//
// # Topologies
//
// The set of models is closed and known at compile time, so it is expressed as a [Kind] enum
// and a sealed [Model] interface rather than a string-keyed factory:
//   - [KindCNN] : four 3×3 convolutions, two 2×2 max pools, two affine layers
//   - [KindMLP] : 784→512→256→10 affine stack with ReLU
//   - [KindLR] : a single 784→10 affine transform (multinomial logistic regression)
//
// Dropout layers of the trained networks are the identity at inference time and are not represented.
//
// # Inputs
//
// Every model accepts either a 3-D batch [N, 28, 28] or a 4-D batch [N, 1, 28, 28]
// and normalizes the singleton channel dimension internally.
//
// # Parameter Files
//
// Parameters are read from safetensors files using the tensor names of the trained
// PyTorch state dicts (for example "cnn_model.11.weight"). Loading is strict: a missing,
// unexpected, mistyped or mis-shaped tensor fails the whole [Load].
package classifier
