package performance

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/hierarchy"
	"github.com/pariksha-io/pariksha/pkg/rbac"
)

func strp(s string) *string { return &s }

// benchTree builds a region tree with enough breadth that containment lookups
// do not degenerate into single-entry map hits.
func benchTree(b *testing.B) *hierarchy.Tree {
	b.Helper()
	regions := []hierarchy.Region{
		{Level: hierarchy.LevelState, Code: "MH", Name: "Maharashtra"},
		{Level: hierarchy.LevelState, Code: "GJ", Name: "Gujarat"},
	}
	for d := 0; d < 10; d++ {
		dCode := fmt.Sprintf("MH-D%02d", d)
		regions = append(regions, hierarchy.Region{
			Level: hierarchy.LevelDistrict, Code: dCode, Name: "District " + dCode, ParentCode: "MH",
		})
		for s := 0; s < 10; s++ {
			sCode := fmt.Sprintf("SCH-%02d%02d", d, s)
			regions = append(regions, hierarchy.Region{
				Level: hierarchy.LevelSchool, Code: sCode, Name: "School " + sCode, ParentCode: dCode,
			})
			regions = append(regions, hierarchy.Region{
				Level: hierarchy.LevelClass, Code: "10A", Name: "Class 10A", ParentCode: sCode,
			})
		}
	}
	regions = append(regions,
		hierarchy.Region{Level: hierarchy.LevelDistrict, Code: "GJ-AHM", Name: "Ahmedabad", ParentCode: "GJ"},
		hierarchy.Region{Level: hierarchy.LevelSchool, Code: "SCH-GJ01", Name: "Ahmedabad Central", ParentCode: "GJ-AHM"},
	)

	idx, err := hierarchy.NewIndex(regions)
	if err != nil {
		b.Fatalf("Failed to build region index: %v", err)
	}
	return hierarchy.NewTree(idx)
}

func benchRole(b *testing.B, name string) directory.Role {
	b.Helper()
	for _, r := range directory.BuiltInRoles() {
		if r.Name == name {
			return r
		}
	}
	b.Fatalf("Unknown built-in role %q", name)
	return directory.Role{}
}

func benchUser(role directory.Role, state, district, school, class string) *directory.User {
	u := &directory.User{
		ID:     uuid.New(),
		Email:  role.Name + "@bench.example",
		Active: true,
		Roles:  []directory.Role{role},
	}
	if state != "" {
		u.StateCode = strp(state)
	}
	if district != "" {
		u.DistrictCode = strp(district)
	}
	if school != "" {
		u.SchoolCode = strp(school)
	}
	if class != "" {
		u.ClassCode = strp(class)
	}
	return u
}

// BenchmarkCanManageUserSameState benchmarks the full containment walk for a
// state coordinator managing a school administrator two levels down.
func BenchmarkCanManageUserSameState(b *testing.B) {
	engine := rbac.NewEngine(benchTree(b))
	manager := benchUser(benchRole(b, directory.RoleState), "MH", "", "", "")
	target := benchUser(benchRole(b, directory.RoleSchool), "MH", "MH-D03", "SCH-0305", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !engine.CanManageUser(manager, target) {
			b.Fatal("Expected state coordinator to manage in-state school admin")
		}
	}
}

// BenchmarkCanManageUserCrossState benchmarks the denial path, which has to
// rule out every rule before refusing.
func BenchmarkCanManageUserCrossState(b *testing.B) {
	engine := rbac.NewEngine(benchTree(b))
	manager := benchUser(benchRole(b, directory.RoleState), "MH", "", "", "")
	target := benchUser(benchRole(b, directory.RoleSchool), "GJ", "GJ-AHM", "SCH-GJ01", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if engine.CanManageUser(manager, target) {
			b.Fatal("Expected cross-state management to be refused")
		}
	}
}

// BenchmarkCanManageUserAdmin benchmarks the ADMIN short-circuit
func BenchmarkCanManageUserAdmin(b *testing.B) {
	engine := rbac.NewEngine(benchTree(b))
	admin := benchUser(benchRole(b, directory.RoleAdmin), "", "", "", "")
	target := benchUser(benchRole(b, directory.RoleStudent), "MH", "MH-D03", "SCH-0305", "10A")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !engine.CanManageUser(admin, target) {
			b.Fatal("Expected admin to manage any user")
		}
	}
}

// BenchmarkHasPermission benchmarks a permission scan over a realistic role,
// the check every write handler runs before touching the directory.
func BenchmarkHasPermission(b *testing.B) {
	engine := rbac.NewEngine(benchTree(b))
	user := benchUser(benchRole(b, directory.RoleState), "MH", "", "", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !engine.HasPermission(user, directory.PermCreateUser) {
			b.Fatal("Expected state coordinator to hold CREATE_USER")
		}
	}
}

// BenchmarkAuthorizationParallel benchmarks concurrent decisions against a
// shared engine, the shape of a loaded API server.
func BenchmarkAuthorizationParallel(b *testing.B) {
	engine := rbac.NewEngine(benchTree(b))
	manager := benchUser(benchRole(b, directory.RoleDistrict), "MH", "MH-D03", "", "")
	inDistrict := benchUser(benchRole(b, directory.RoleSchool), "MH", "MH-D03", "SCH-0305", "")
	outOfDistrict := benchUser(benchRole(b, directory.RoleSchool), "MH", "MH-D07", "SCH-0702", "")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if !engine.CanManageUser(manager, inDistrict) {
				b.Fail()
			}
			if engine.CanManageUser(manager, outOfDistrict) {
				b.Fail()
			}
		}
	})
}

// BenchmarkAccessTokenIssue benchmarks signing an access token carrying a
// realistic role and permission claim set.
func BenchmarkAccessTokenIssue(b *testing.B) {
	issuer := auth.NewIssuer("benchmark-secret-0123456789abcdef", 15*time.Minute, 24*time.Hour)
	user := benchUser(benchRole(b, directory.RoleState), "MH", "", "", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := issuer.AccessToken(user); err != nil {
			b.Fatalf("Failed to issue token: %v", err)
		}
	}
}

// BenchmarkTokenVerify benchmarks parsing and validating an access token
func BenchmarkTokenVerify(b *testing.B) {
	issuer := auth.NewIssuer("benchmark-secret-0123456789abcdef", 15*time.Minute, 24*time.Hour)
	user := benchUser(benchRole(b, directory.RoleState), "MH", "", "", "")
	token, err := issuer.AccessToken(user)
	if err != nil {
		b.Fatalf("Failed to issue token: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := issuer.Verify(token); err != nil {
			b.Fatalf("Failed to verify token: %v", err)
		}
	}
}

// BenchmarkTokenVerifyParallel benchmarks concurrent verification, which runs
// once per authenticated request.
func BenchmarkTokenVerifyParallel(b *testing.B) {
	issuer := auth.NewIssuer("benchmark-secret-0123456789abcdef", 15*time.Minute, 24*time.Hour)
	user := benchUser(benchRole(b, directory.RoleStudent), "MH", "MH-D03", "SCH-0305", "10A")
	token, err := issuer.AccessToken(user)
	if err != nil {
		b.Fatalf("Failed to issue token: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := issuer.Verify(token); err != nil {
				b.Fail()
			}
		}
	})
}

// BenchmarkPasswordHash benchmarks hashing at the production cost factor.
// Roughly 250ms per op, so it is skipped in short mode.
func BenchmarkPasswordHash(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping bcrypt benchmark in short mode")
	}

	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Hash("correct horse battery staple"); err != nil {
			b.Fatalf("Failed to hash password: %v", err)
		}
	}
}

// BenchmarkPasswordCompare benchmarks the verification side of a login. The
// cost factor is read from the stored hash, so this matches Hash per op.
func BenchmarkPasswordCompare(b *testing.B) {
	if testing.Short() {
		b.Skip("Skipping bcrypt benchmark in short mode")
	}

	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	hash, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		b.Fatalf("Failed to hash password: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := hasher.Compare(hash, "correct horse battery staple"); err != nil {
			b.Fatalf("Failed to compare password: %v", err)
		}
	}
}
