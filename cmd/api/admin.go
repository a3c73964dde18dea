package main

import (
	"context"

	"paie/internal/auth"
)

type CreateAdminCmd struct {
	Name     string `help:"Display name." required:""`
	Email    string `help:"Login email." required:""`
	Password string `help:"Password, at least 8 characters." required:"" env:"PAIE_ADMIN_PASSWORD"`
	Role     string `help:"super-admin or co-admin." default:"super-admin" enum:"super-admin,co-admin"`
}

func (c *CreateAdminCmd) Run(ctx context.Context, g *Globals) error {
	role, err := auth.ParseRole(c.Role)
	if err != nil {
		return err
	}
	b, err := g.openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := auth.NewService(b.staff, g.Config.JWTIssuer, g.Config.JWTSigningKey, g.Config.AccessTTL, g.Config.RefreshTTL)
	st, err := svc.CreateStaff(g.Log.WithContext(ctx), c.Name, c.Email, c.Password, role)
	if err != nil {
		return err
	}
	g.Log.Info().Str("staff_id", st.ID).Str("email", st.Email).Str("role", string(st.Role)).Msg("staff account created")
	return nil
}
