package session

import (
	"crypto/rand"
	"math/big"
)

const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RoomIDLength is the length of generated room ids.
const RoomIDLength = 6

// GenerateRoomID returns a random room id such as "K3Q9ZB".
func GenerateRoomID() string {
	b := make([]byte, RoomIDLength)
	max := big.NewInt(int64(len(roomIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = roomIDAlphabet[n.Int64()]
	}
	return string(b)
}
