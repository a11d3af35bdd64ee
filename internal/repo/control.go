package repo

import (
	"encoding/json"

	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// RepositoryJSON is the plaintext control blob (spec §6.2).
type RepositoryJSON struct {
	Name       string `json:"name"`
	Comment    string `json:"comment"`
	Encryption string `json:"encryption"` // "none" or "aes"
}

// RepositoryBlob is the encrypted control blob, after decryption (spec §6.2).
type RepositoryBlob struct {
	Time int64 `json:"time"` // microseconds
}

func encodeRepositoryJSON(r RepositoryJSON) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to encode repository.json").
			WithComponent("repo").WithCause(err)
	}
	return data, nil
}

func decodeRepositoryJSON(data []byte) (RepositoryJSON, error) {
	var r RepositoryJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return RepositoryJSON{}, bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to parse repository.json").
			WithComponent("repo").WithCause(err)
	}
	return r, nil
}

func encodeRepositoryBlob(r RepositoryBlob) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to encode repository blob").
			WithComponent("repo").WithCause(err)
	}
	return data, nil
}

func decodeRepositoryBlob(data []byte) (RepositoryBlob, error) {
	var r RepositoryBlob
	if err := json.Unmarshal(data, &r); err != nil {
		return RepositoryBlob{}, bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to parse repository blob").
			WithComponent("repo").WithCause(err)
	}
	return r, nil
}
