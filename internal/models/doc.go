// Package models defines the data types shared by the inference pipeline, the HTTP layer and persistence.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): values serialized on the wire
//   - [Prediction] : One (digit, confidence) pair
//   - [PredictionResult] : A model's full distribution plus its top pick
//
// 2. Persistent Entities: Database-backed records
//   - [Session] : Browser session holding OAuth state and Spotify tokens
//   - [PredictionRecord] : Audit entry of a served top pick
//
// All persistent entities implement the [Model] interface providing ID, timestamps and validation.
// The [Repository] interface defines standard CRUD operations for database access.
package models
