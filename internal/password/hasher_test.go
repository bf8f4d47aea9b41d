package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ハッシュと検証のラウンドトリップを検証
func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hashed, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hashed)

	assert.True(t, h.Verify(hashed, "correct horse battery staple"))
	assert.False(t, h.Verify(hashed, "wrong password"))
}

// 同じ平文でもソルトによりハッシュが毎回異なることを検証
func TestHasher_SaltedHashes(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	h1, err := h.Hash("secret")
	require.NoError(t, err)
	h2, err := h.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

// 範囲外コストがデフォルトコストにフォールバックすることを検証
func TestNewHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewHasher(9999)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	h = NewHasher(-1)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)
}

// 不正なハッシュ文字列に対してVerifyがfalseを返すことを検証
func TestHasher_VerifyMalformedHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("not-a-bcrypt-hash", "secret"))
}
