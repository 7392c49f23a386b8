package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"
	"golang.org/x/crypto/bcrypt"

	"churchevents/internal/dto"
	"churchevents/internal/mailer"
	"churchevents/internal/model"
	"churchevents/internal/pix"
	"churchevents/internal/rabbit"
	"churchevents/internal/repo"
	"churchevents/pkg/validator"
)

type Service interface {
	SignUp(ctx *ginext.Context)
	Login(ctx *ginext.Context)
	GetProfile(ctx *ginext.Context)
	UpdateProfile(ctx *ginext.Context)
	GetChurches(ctx *ginext.Context)

	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)

	Register(ctx *ginext.Context)
	MyRegistrations(ctx *ginext.Context)
	DeleteRegistration(ctx *ginext.Context)
	ApproveRegistration(ctx *ginext.Context)
	RejectRegistration(ctx *ginext.Context)
	CheckIn(ctx *ginext.Context)

	CreatePayment(ctx *ginext.Context)
	PaymentStatus(ctx *ginext.Context)
}

type service struct {
	repo          repo.Repository
	log           *zerolog.Logger
	pix           pix.Client
	poller        *pix.Poller
	rbt           *rabbit.Client
	mail          *mailer.Mailer
	jwtSecret     []byte
	tokenDuration time.Duration
}

func NewService(
	repository repo.Repository,
	logger *zerolog.Logger,
	pixClient pix.Client,
	poller *pix.Poller,
	rbt *rabbit.Client,
	mail *mailer.Mailer,
	jwtSecret string,
) Service {
	return &service{
		repo:          repository,
		log:           logger,
		pix:           pixClient,
		poller:        poller,
		rbt:           rbt,
		mail:          mail,
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: 24 * time.Hour,
	}
}

func (s *service) SignUp(ctx *ginext.Context) {
	var req dto.SignUpRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if existing, err := s.repo.GetUserByEmail(ctx.Request.Context(), req.Email); err == nil && existing != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Este email já está em uso")
		return
	} else if err != nil && !errors.Is(err, repo.ErrUserNotFound) {
		s.log.Error().Err(err).Msg("failed to check existing user")
		dto.InternalServerError(ctx)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to hash password")
		dto.InternalServerError(ctx)
		return
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         model.RoleMember,
	}

	if err := s.repo.CreateUser(ctx.Request.Context(), user); err != nil {
		s.log.Error().Err(err).Msg("failed to create user")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("user_id", user.ID).Msg("user signed up")

	dto.SuccessCreatedResponse(ctx, dto.AuthResponse{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	})
}

func (s *service) Login(ctx *ginext.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	user, err := s.repo.GetUserByEmail(ctx.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			dto.UnauthorizedError(ctx, "Email ou senha incorretos")
			return
		}
		s.log.Error().Err(err).Msg("failed to get user for login")
		dto.InternalServerError(ctx)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		dto.UnauthorizedError(ctx, "Email ou senha incorretos")
		return
	}

	token, err := s.generateJWT(user)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to generate token")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.AuthResponse{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	})
}

func (s *service) generateJWT(user *model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"exp":  time.Now().Add(s.tokenDuration).Unix(),
		"iat":  time.Now().Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

// currentUser loads the profile of the authenticated caller.
func (s *service) currentUser(ctx *ginext.Context) (*model.User, bool) {
	userID := ctx.GetString("userId")
	if userID == "" {
		dto.UnauthorizedError(ctx, "Authentication required")
		return nil, false
	}

	user, err := s.repo.GetUserByID(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			dto.UnauthorizedError(ctx, "Usuário não encontrado. Faça login novamente.")
			return nil, false
		}
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to load current user")
		dto.InternalServerError(ctx)
		return nil, false
	}
	return user, true
}

func (s *service) GetProfile(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}
	dto.SuccessResponse(ctx, user)
}

func (s *service) UpdateProfile(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Phone != "" {
		user.Phone = validator.OnlyDigits(req.Phone)
	}
	if req.CPF != "" {
		cpf := validator.OnlyDigits(req.CPF)
		inUse, err := s.repo.CPFInUseByOther(ctx.Request.Context(), cpf, user.ID)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to check cpf uniqueness")
			dto.InternalServerError(ctx)
			return
		}
		if inUse {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Este CPF já está em uso por outro usuário")
			return
		}
		user.CPF = cpf
	}
	if req.ChurchID != "" {
		church, err := s.repo.GetChurchByID(ctx.Request.Context(), req.ChurchID)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to load church")
			dto.InternalServerError(ctx)
			return
		}
		if church == nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Igreja não encontrada")
			return
		}
		user.ChurchID = req.ChurchID
	}

	if err := s.repo.UpdateUserProfile(ctx.Request.Context(), user); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to update profile")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("user_id", user.ID).Msg("profile updated")
	dto.SuccessResponse(ctx, user)
}

func (s *service) GetChurches(ctx *ginext.Context) {
	churches, err := s.repo.GetAllChurches(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get churches")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, churches)
}

// requireManager loads the caller and rejects roles that cannot manage
// registrations or events.
func (s *service) requireManager(ctx *ginext.Context) (*model.User, bool) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return nil, false
	}
	if !user.Role.CanManageRegistrations() {
		dto.ForbiddenError(ctx, "Você não tem permissão para esta operação")
		return nil, false
	}
	return user, true
}

// background returns a context detached from the request but bounded, for
// projections applied from poller callbacks.
func background(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
