package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCPF(t *testing.T) {
	assert.True(t, ValidCPF("52998224725"))
	assert.True(t, ValidCPF("529.982.247-25"), "formatting must be ignored")

	assert.False(t, ValidCPF(""))
	assert.False(t, ValidCPF("5299822472"), "too short")
	assert.False(t, ValidCPF("529982247255"), "too long")
	assert.False(t, ValidCPF("11111111111"), "repeated digits")
	assert.False(t, ValidCPF("52998224726"), "wrong check digit")
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("11987654321"))
	assert.True(t, ValidPhone("(11) 98765-4321"))
	assert.True(t, ValidPhone("1132654321"), "landline with 10 digits")

	assert.False(t, ValidPhone("987654321"), "too short")
	assert.False(t, ValidPhone("119876543210"), "too long")
	assert.False(t, ValidPhone(""))
}

func TestOnlyDigits(t *testing.T) {
	assert.Equal(t, "11987654321", OnlyDigits("(11) 98765-4321"))
	assert.Equal(t, "52998224725", OnlyDigits("529.982.247-25"))
	assert.Equal(t, "", OnlyDigits("abc"))
}

func TestValidateStructTags(t *testing.T) {
	type payload struct {
		CPF   string `validate:"required,cpf"`
		Phone string `validate:"required,brphone"`
	}

	assert.NoError(t, Validate(context.Background(), payload{CPF: "52998224725", Phone: "11987654321"}))

	err := Validate(context.Background(), payload{CPF: "123", Phone: "11987654321"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid CPF")

	err = Validate(context.Background(), payload{CPF: "52998224725", Phone: "123"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid phone number")
}
