package seed

import (
	"fmt"
	"strings"

	"docket/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password every seeded account logs in with.
const DefaultPassword = "password123"

// Factory builds unsaved domain values filled with plausible fake content.
type Factory struct {
	faker    *gofakeit.Faker
	password string
}

// NewFactory returns a factory. A zero seed draws a random one; any other value makes output
// repeatable. skipBcrypt stores the plain password, which only suits throwaway databases.
func NewFactory(seed int64, skipBcrypt bool) (*Factory, error) {
	f := &Factory{faker: gofakeit.New(seed), password: DefaultPassword}
	if !skipBcrypt {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password: %w", err)
		}
		f.password = string(hashed)
	}
	return f, nil
}

// BuildUser returns an account with the given role and sign-off qualifications.
func (f *Factory) BuildUser(username string, role models.Role, qc, pm bool, overrides ...func(*models.User)) *models.User {
	if username == "" {
		username = strings.ToLower(f.faker.Username()) + fmt.Sprintf("%d", f.faker.Number(100, 999))
	}
	u := &models.User{
		Username: username,
		Email:    fmt.Sprintf("%s@%s", username, "docket.local"),
		Password: f.password,
		Role:     role,
		IsQC:     qc,
		IsPM:     pm,
	}
	for _, override := range overrides {
		override(u)
	}
	return u
}

// CodePrefix returns a random upper-case prefix of n letters.
func (f *Factory) CodePrefix(n uint) string {
	return strings.ToUpper(f.faker.LetterN(n))
}

// ProjectTitle returns a project name such as "Acme Inc Quality Plan".
func (f *Factory) ProjectTitle() string {
	kind := f.faker.RandomString([]string{"Handbook", "Procedures", "Specification", "Manual", "Quality Plan"})
	return fmt.Sprintf("%s %s", f.faker.Company(), kind)
}

// ProjectDescription returns a one-paragraph project summary.
func (f *Factory) ProjectDescription() string {
	return f.faker.Paragraph(1, 2, 12, " ")
}

// CreatePayload returns an item proposal. Roughly one in four carries an attachment reference.
func (f *Factory) CreatePayload(related ...uint) models.CreatePayload {
	p := models.CreatePayload{
		Title:          strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 7)), "."),
		Content:        f.faker.Paragraph(f.faker.Number(1, 3), f.faker.Number(2, 5), 14, "\n\n"),
		RelatedItemIDs: related,
	}
	if f.faker.Number(1, 4) == 1 {
		name := fmt.Sprintf("%s.%s", f.faker.Word(), f.faker.RandomString([]string{"pdf", "xlsx", "docx", "png"}))
		p.Attachments = []models.Attachment{{
			Name: name,
			Path: fmt.Sprintf("attachments/%s/%s", f.faker.UUID(), name),
			Size: int64(f.faker.Number(2_000, 4_000_000)),
		}}
	}
	return p
}

// UpdatePayload returns a revision of an item's title and content.
func (f *Factory) UpdatePayload(current models.Item) models.UpdatePayload {
	return models.UpdatePayload{
		Title:   current.Title + " (rev.)",
		Content: current.Content + "\n\n" + f.faker.Paragraph(1, 2, 12, " "),
	}
}

// Note returns a short reviewer remark.
func (f *Factory) Note() string {
	return f.faker.HackerPhrase()
}

// Intn returns a value in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}
