package auth

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// DefaultVerifyConcurrency bounds how many email-token verifications run at
// the same time. Verification validates an HMAC signature per call; the cap
// keeps a burst of requests from starving the rest of the handlers.
var DefaultVerifyConcurrency = 8

// HTTPController exposes the session manager over a JSON API.
type HTTPController struct {
	Debug   bool
	Logger  Logger
	Manager *SessionManager

	verifySem chan struct{}
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(l Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// WithVerifyConcurrency overrides the verification concurrency cap.
func WithVerifyConcurrency(n int) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if n > 0 {
			c.verifySem = make(chan struct{}, n)
		}
		return c
	}
}

func NewHTTPController(manager *SessionManager, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:    defLogger{},
		Manager:   manager,
		verifySem: make(chan struct{}, DefaultVerifyConcurrency),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing SessionManager in auth controller...")
	}

	return c
}

// RegisterRoutes mounts the auth endpoints on the given app.
func (a *HTTPController) RegisterRoutes(app *fiber.App) {
	grp := app.Group("/auth")

	grp.Post("/login", a.Login)
	grp.Post("/refresh-token", a.Refresh)
	grp.Get("/userdata", a.UserData)
	grp.Post("/register", a.Register)
	grp.Get("/register/activate/:link", a.Activate)
	grp.Post("/change-password", a.ChangePassword)
	grp.Post("/email-verification/request", a.RequestEmailVerification)
	grp.Post("/email-verification/verify", a.VerifyEmailToken)
	grp.Post("/logout", a.Logout)
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *HTTPController) Login(ctx *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	token, err := a.Manager.Login(ctx.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderData(ctx, "Login success", fiber.Map{
		"token": token,
	})
}

func (a *HTTPController) Refresh(ctx *fiber.Ctx) error {
	token, err := bearerToken(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	fresh, err := a.Manager.Refresh(ctx.UserContext(), token)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderData(ctx, "Token refreshed", fiber.Map{
		"token": fresh,
	})
}

func (a *HTTPController) UserData(ctx *fiber.Ctx) error {
	token, err := bearerToken(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	fresh, identity, err := a.Manager.UserData(ctx.UserContext(), token)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderData(ctx, "User data", fiber.Map{
		"token": fresh,
		"userInformation": fiber.Map{
			"id":       identity.ID(),
			"username": identity.Username(),
			"email":    identity.Email(),
		},
	})
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Username        string         `form:"username" json:"username"`
	Email           string         `form:"email" json:"email"`
	Phone           string         `form:"phone_number" json:"phone_number"`
	Password        string         `form:"password" json:"password"`
	ConfirmPassword string         `form:"confirm_password" json:"confirm_password"`
	Metadata        map[string]any `form:"metadata" json:"metadata"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *HTTPController) Register(ctx *fiber.Ctx) error {
	payload := new(RegisterRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	message, err := a.Manager.Register(ctx.UserContext(), RegisterMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
		Phone:    payload.Phone,
		Metadata: payload.Metadata,
	})
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderMessage(ctx, message)
}

func (a *HTTPController) Activate(ctx *fiber.Ctx) error {
	link := ctx.Params("link", "")
	if link == "" {
		return a.renderError(ctx, ErrActivationInvalid)
	}

	result, err := a.Manager.Activate(ctx.UserContext(), link)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderData(ctx, result.Message, fiber.Map{
		"token": result.Token,
		"userInformation": fiber.Map{
			"id":       result.Identity.ID(),
			"username": result.Identity.Username(),
			"email":    result.Identity.Email(),
		},
	})
}

// ChangePasswordRequest is the password change payload
type ChangePasswordRequest struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload. The confirmation match is checked by
// the manager after the verification gate, so an unverified identity gets the
// unauthorized outcome no matter what it sends.
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *HTTPController) ChangePassword(ctx *fiber.Ctx) error {
	payload := new(ChangePasswordRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	err := a.Manager.ChangePassword(ctx.UserContext(), payload.Email, payload.Password, payload.ConfirmPassword)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderMessage(ctx, "Password changed successfully")
}

// EmailVerificationRequest asks for a verification token to be delivered.
type EmailVerificationRequest struct {
	Email   string `form:"email" json:"email"`
	Purpose string `form:"type" json:"type"`
}

// Validate will validate the payload
func (r EmailVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(
			&r.Purpose,
			validation.Required,
			validation.In(
				string(PurposeRegistration),
				string(PurposeChangePassword),
			),
		),
	)
}

func (a *HTTPController) RequestEmailVerification(ctx *fiber.Ctx) error {
	payload := new(EmailVerificationRequest)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	message, err := a.Manager.RequestVerification(ctx.UserContext(), VerificationPurpose(payload.Purpose), payload.Email)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return renderMessage(ctx, message)
}

// EmailVerificationVerify carries the token back for validation.
type EmailVerificationVerify struct {
	Email   string `form:"email" json:"email"`
	Purpose string `form:"type" json:"type"`
	Token   string `form:"token" json:"token"`
}

// Validate will validate the payload
func (r EmailVerificationVerify) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(
			&r.Purpose,
			validation.Required,
			validation.In(
				string(PurposeRegistration),
				string(PurposeChangePassword),
			),
		),
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *HTTPController) VerifyEmailToken(ctx *fiber.Ctx) error {
	payload := new(EmailVerificationVerify)

	if err := ctx.BodyParser(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	a.verifySem <- struct{}{}
	verified := a.Manager.VerifyEmailToken(
		ctx.UserContext(),
		VerificationPurpose(payload.Purpose),
		payload.Email,
		payload.Token,
	)
	<-a.verifySem

	return renderData(ctx, "Email verification result", fiber.Map{
		"isVerified": verified,
	})
}

func (a *HTTPController) Logout(ctx *fiber.Ctx) error {
	token, err := bearerToken(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if err := a.Manager.Logout(ctx.UserContext(), token); err != nil {
		return a.renderError(ctx, err)
	}

	return renderMessage(ctx, "Logout success")
}

func bearerToken(ctx *fiber.Ctx) (string, error) {
	header := ctx.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", ErrMissingToken
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" || token == header {
		return "", ErrMissingToken
	}

	return token, nil
}

func renderMessage(ctx *fiber.Ctx, message string) error {
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": message,
	})
}

func renderData(ctx *fiber.Ctx, message string, data fiber.Map) error {
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func (a *HTTPController) badPayload(ctx *fiber.Ctx, err error) error {
	a.Logger.Error("auth controller parse payload: ", "error", err)
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Error parsing body",
	})
}

func (a *HTTPController) invalidPayload(ctx *fiber.Ctx, err error) error {
	a.Logger.Error("auth controller validate payload: ", "error", err)
	return ctx.Status(fiber.StatusNotAcceptable).JSON(fiber.Map{
		"message":    "Error validating payload",
		"validation": FormatValidationErrorToMap(err),
	})
}

func (a *HTTPController) renderError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"
	textCode := ""

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		message = richErr.Message
		textCode = richErr.TextCode

		switch richErr.Category {
		case goerrors.CategoryRateLimit:
			status = fiber.StatusTooManyRequests
		case goerrors.CategoryNotFound:
			status = fiber.StatusNotFound
		case goerrors.CategoryAuth, goerrors.CategoryAuthz:
			status = fiber.StatusUnauthorized
		case goerrors.CategoryConflict, goerrors.CategoryValidation:
			status = fiber.StatusNotAcceptable
		case goerrors.CategoryBadInput:
			status = fiber.StatusBadRequest
		default:
			status = fiber.StatusInternalServerError
		}
	}

	if status == fiber.StatusInternalServerError {
		a.Logger.Error("auth controller error: ", "error", err)
		message = "Internal server error"
	}

	body := fiber.Map{"message": message}
	if textCode != "" {
		body["code"] = textCode
	}

	return ctx.Status(status).JSON(body)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}
