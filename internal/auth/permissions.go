package auth

import "github.com/mohammedemad618/amir-sub000/internal/storage/models"

// Permission names an action guarded by role
type Permission string

const (
	PermBookingCreate  Permission = "booking:create"
	PermBookingCancel  Permission = "booking:cancel"
	PermBookingReadOwn Permission = "booking:read_own"
	PermSlotRead       Permission = "slot:read"
	PermAdminSlots     Permission = "admin:slots"
	PermAdminSchedule  Permission = "admin:schedule"
	PermAdminBookings  Permission = "admin:bookings"
	PermAdminUsers     Permission = "admin:users"
)

var userPermissions = []Permission{
	PermBookingCreate,
	PermBookingCancel,
	PermBookingReadOwn,
	PermSlotRead,
}

var rolePermissions = map[models.Role]map[Permission]bool{
	models.RoleUser:  set(userPermissions...),
	models.RoleAdmin: set(append(userPermissions, PermAdminSlots, PermAdminSchedule, PermAdminBookings, PermAdminUsers)...),
}

func set(perms ...Permission) map[Permission]bool {
	m := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		m[p] = true
	}
	return m
}

// RoleHasPermission reports whether role grants perm. Unknown roles grant nothing.
func RoleHasPermission(role models.Role, perm Permission) bool {
	return rolePermissions[role][perm]
}
