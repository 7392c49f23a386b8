// Package profile gates event registration on profile completeness.
package profile

import (
	"strings"

	"churchevents/internal/model"
	"churchevents/pkg/validator"
)

const ProfileNotFoundMessage = "Usuário não encontrado. Faça login novamente."

// field labels shown to the user, in the order they are checked.
const (
	labelName   = "Nome"
	labelEmail  = "Email"
	labelCPF    = "CPF"
	labelPhone  = "Telefone"
	labelChurch = "Igreja"
)

// CanRegister reports whether the profile has every field required to
// register for an event: name, email, CPF, phone and church affiliation.
func CanRegister(u *model.User) bool {
	return u != nil && len(missing(u)) == 0
}

// MissingFields returns the labels of the required fields that are blank.
func MissingFields(u *model.User) []string {
	if u == nil {
		return []string{ProfileNotFoundMessage}
	}
	return missing(u)
}

// RegistrationErrorMessage builds the user-facing eligibility message.
// It returns an empty string when the profile is complete and valid.
func RegistrationErrorMessage(u *model.User) string {
	if u == nil {
		return ProfileNotFoundMessage
	}

	if fields := missing(u); len(fields) > 0 {
		return "Para se inscrever em eventos, você precisa completar seu perfil com os seguintes dados: " +
			strings.Join(fields, ", ") +
			". Acesse seu perfil para atualizar essas informações."
	}

	if errs := formatErrors(u); len(errs) > 0 {
		return "Dados inválidos: " + strings.Join(errs, ", ") +
			". Acesse seu perfil para corrigir essas informações."
	}

	return ""
}

func missing(u *model.User) []string {
	var fields []string
	if strings.TrimSpace(u.Name) == "" {
		fields = append(fields, labelName)
	}
	if strings.TrimSpace(u.Email) == "" {
		fields = append(fields, labelEmail)
	}
	if strings.TrimSpace(u.CPF) == "" {
		fields = append(fields, labelCPF)
	}
	if strings.TrimSpace(u.Phone) == "" {
		fields = append(fields, labelPhone)
	}
	if strings.TrimSpace(u.ChurchID) == "" {
		fields = append(fields, labelChurch)
	}
	return fields
}

func formatErrors(u *model.User) []string {
	var errs []string
	if u.CPF != "" && !validator.ValidCPF(u.CPF) {
		errs = append(errs, "CPF inválido")
	}
	if u.Phone != "" && !validator.ValidPhone(u.Phone) {
		errs = append(errs, "Telefone inválido")
	}
	return errs
}
