package common

import (
	"crypto/rand"
	"math/big"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Rango efímero IANA del que se elige el puerto del broker.
const (
	EphemeralPortMin = 49152
	EphemeralPortMax = 65535
)

// RandomString genera una cadena aleatoria alfanumérica de longitud n.
func RandomString(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand no falla en la práctica; si lo hace no hay
			// alternativa segura.
			panic(err)
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}

// RandomBrokerPort elige un puerto aleatorio del rango efímero.
func RandomBrokerPort() int {
	span := big.NewInt(int64(EphemeralPortMax - EphemeralPortMin + 1))
	idx, err := rand.Int(rand.Reader, span)
	if err != nil {
		panic(err)
	}
	return EphemeralPortMin + int(idx.Int64())
}
